// Package reconciler manages the demo identity lifecycle and keeps the
// local ledger aligned with the remote summary authority.
package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/loyaltyx/demoledger/internal/domain"
)

// State of the demo session.
type State string

const (
	StateInactive State = "inactive"
	StateCreating State = "creating"
	StateActive   State = "active"
)

type authorityAPI interface {
	Create(ctx context.Context, handle string) (*domain.Summary, error)
	Summary(ctx context.Context, handle string) (*domain.Summary, error)
	Exit(ctx context.Context, handle string) error
	Reset(ctx context.Context, handle string) (*domain.Summary, error)
}

type ledgerService interface {
	ApplyPatch(domain.LedgerPatch)
	Reset()
}

type identityStore interface {
	SaveIdentity(domain.Identity) error
	Clear() error
	LoadIdentity() (*domain.Identity, error)
}

type journal interface {
	Append(domain.OpEvent) error
}

// Reconciler drives the Inactive -> Creating -> Active -> Inactive
// lifecycle. Network calls never happen under the lock; responses are
// checked against the live identity so a stale fetch cannot resurrect a
// torn-down ledger.
type Reconciler struct {
	mu       sync.Mutex
	state    State
	identity *domain.Identity

	authority authorityAPI
	ledger    ledgerService
	store     identityStore
	journal   journal
	logger    *zap.Logger
}

// New creates a reconciler in the Inactive state.
func New(authority authorityAPI, ledger ledgerService, store identityStore, journal journal, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		state:     StateInactive,
		authority: authority,
		ledger:    ledger,
		store:     store,
		journal:   journal,
		logger:    logger,
	}
}

// Status is a read-only view of the demo session.
type Status struct {
	State     State      `json:"state"`
	Handle    string     `json:"handle,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Status returns the current session state.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := Status{State: r.state}
	if r.identity != nil {
		status.Handle = r.identity.Handle
		status.ExpiresAt = r.identity.ExpiresAt
	}
	return status
}

// EnableDemoMode creates a demo identity against the authority and
// applies its initial summary. A remote failure propagates to the
// caller and leaves no partial identity behind.
func (r *Reconciler) EnableDemoMode(ctx context.Context) error {
	handle := NewHandle()

	r.mu.Lock()
	if r.state != StateInactive {
		r.mu.Unlock()
		return errors.Errorf("demo mode is %s, expected inactive", r.state)
	}
	r.state = StateCreating
	r.identity = &domain.Identity{Handle: handle}
	r.mu.Unlock()

	summary, err := r.authority.Create(ctx, handle)

	r.mu.Lock()
	defer r.mu.Unlock()

	// teardown may have raced the create call
	if r.state != StateCreating || r.identity == nil || r.identity.Handle != handle {
		r.logger.Warn("discarding create response for a superseded identity", zap.String("handle", handle))
		return errors.New("demo identity superseded while creating")
	}

	if err != nil {
		r.state = StateInactive
		r.identity = nil
		return errors.Wrap(err, "enable demo mode")
	}

	r.identity = &domain.Identity{Handle: handle, Active: true, ExpiresAt: summary.DemoExpiresAt}
	r.state = StateActive

	r.ledger.ApplyPatch(summary.Patch())
	if err := r.store.SaveIdentity(*r.identity); err != nil {
		r.logger.Warn("failed to persist demo identity", zap.Error(err))
	}
	r.appendEvent(domain.OpDemoEnabled, handle)

	r.logger.Info("demo mode enabled", zap.String("handle", handle))
	return nil
}

// Refresh fetches the authority summary for the active identity and
// applies it over local state. Failures degrade silently: stale local
// data beats no data.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateActive || r.identity == nil {
		r.mu.Unlock()
		return nil
	}
	handle := r.identity.Handle
	r.mu.Unlock()

	summary, err := r.authority.Summary(ctx, handle)
	if err != nil {
		r.logger.Warn("demo summary refresh failed, keeping local state",
			zap.String("handle", handle), zap.Error(err))
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// the session may have been torn down while the fetch was in flight
	if r.state != StateActive || r.identity == nil || r.identity.Handle != handle {
		r.logger.Warn("discarding stale summary for a torn-down identity", zap.String("handle", handle))
		return nil
	}
	if summary.Address != "" && summary.Address != handle {
		r.logger.Warn("discarding summary for a different address",
			zap.String("handle", handle), zap.String("address", summary.Address))
		return nil
	}

	if summary.DemoExpiresAt != nil {
		r.identity.ExpiresAt = summary.DemoExpiresAt
	}

	// the authority owns the session lifecycle: a summary that no longer
	// marks the account as an active demo ends it locally too
	if !summary.IsDemo || !summary.DemoActive || r.identity.Expired(time.Now()) {
		r.logger.Info("authority reports demo session over, tearing down", zap.String("handle", handle))
		r.teardownLocked(handle)
		return nil
	}

	r.ledger.ApplyPatch(summary.Patch())
	if err := r.store.SaveIdentity(*r.identity); err != nil {
		r.logger.Warn("failed to persist demo identity", zap.Error(err))
	}
	return nil
}

// DisableDemoMode tears the session down. The authority is notified on
// a best-effort basis; locally the teardown always succeeds, clearing
// the ledger and every persisted record.
func (r *Reconciler) DisableDemoMode(ctx context.Context) error {
	r.mu.Lock()
	var handle string
	if r.identity != nil {
		handle = r.identity.Handle
	}
	r.state = StateInactive
	r.identity = nil
	r.mu.Unlock()

	if handle != "" {
		if err := r.authority.Exit(ctx, handle); err != nil {
			r.logger.Warn("failed to notify authority about demo exit", zap.Error(err))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.teardownLocked(handle)

	r.logger.Info("demo mode disabled", zap.String("handle", handle))
	return nil
}

// teardownLocked clears the session, the ledger, and persisted state.
// Caller holds r.mu.
func (r *Reconciler) teardownLocked(handle string) {
	r.state = StateInactive
	r.identity = nil
	r.ledger.Reset()
	if err := r.store.Clear(); err != nil {
		r.logger.Warn("failed to clear persisted demo state", zap.Error(err))
	}
	r.appendEvent(domain.OpDemoDisabled, handle)
}

// Reset asks the authority to restore the default grant and applies the
// refreshed summary. Only valid while active.
func (r *Reconciler) Reset(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateActive || r.identity == nil {
		r.mu.Unlock()
		return errors.New("demo mode is not active")
	}
	handle := r.identity.Handle
	r.mu.Unlock()

	summary, err := r.authority.Reset(ctx, handle)
	if err != nil {
		return errors.Wrap(err, "reset demo account")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateActive || r.identity == nil || r.identity.Handle != handle {
		return errors.New("demo identity superseded while resetting")
	}

	if summary.DemoExpiresAt != nil {
		r.identity.ExpiresAt = summary.DemoExpiresAt
	}
	r.ledger.ApplyPatch(summary.Patch())
	if err := r.store.SaveIdentity(*r.identity); err != nil {
		r.logger.Warn("failed to persist demo identity", zap.Error(err))
	}
	return nil
}

// Restore picks up a persisted demo session on startup. An expired or
// inactive record is cleaned up instead of resumed.
func (r *Reconciler) Restore() error {
	stored, err := r.store.LoadIdentity()
	if err != nil {
		return errors.Wrap(err, "load persisted identity")
	}
	if stored == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !stored.Active || stored.Expired(time.Now()) {
		r.logger.Info("persisted demo session is stale, clearing",
			zap.String("handle", stored.Handle))
		r.teardownLocked(stored.Handle)
		return nil
	}

	r.identity = stored
	r.state = StateActive
	r.logger.Info("restored demo session", zap.String("handle", stored.Handle))
	return nil
}

// RunRefreshLoop periodically refreshes the active session until the
// context is cancelled.
func (r *Reconciler) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}

func (r *Reconciler) appendEvent(kind domain.OpKind, handle string) {
	if r.journal == nil {
		return
	}
	event := domain.OpEvent{
		ID:      uuid.New().String(),
		Kind:    kind,
		At:      time.Now(),
		Message: handle,
	}
	if err := r.journal.Append(event); err != nil {
		r.logger.Warn("failed to journal demo lifecycle event", zap.Error(err))
	}
}

// NewHandle generates an address-like demo account handle from a
// throwaway secp256k1 key. The key is discarded: the handle is a label,
// not a wallet.
func NewHandle() string {
	key, err := crypto.GenerateKey()
	if err != nil {
		// entropy exhaustion; fall back to a uuid-derived pseudo address
		raw := strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
		return "0x" + raw[:40]
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
