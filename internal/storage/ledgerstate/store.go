// Package ledgerstate persists the demo ledger and identity to local
// JSON files so restarts keep committed operations.
package ledgerstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/loyaltyx/demoledger/internal/domain"
)

const (
	ledgerFileName   = "ledger.json"
	identityFileName = "identity.json"
)

// Store writes ledger and identity snapshots under a fixed directory.
type Store struct {
	ledgerPath   string
	identityPath string
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("state dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger state dir")
	}

	return &Store{
		ledgerPath:   filepath.Join(dir, ledgerFileName),
		identityPath: filepath.Join(dir, identityFileName),
	}, nil
}

// StoredLedger is the serialized ledger snapshot. Amounts are strings so
// the format stays stable across decimal library versions; empty or
// missing fields fall back to system defaults on load.
type StoredLedger struct {
	Points         string           `json:"points"`
	TokenBalance   string           `json:"token_balance"`
	StakedTokens   string           `json:"staked_tokens"`
	StakingRewards string           `json:"staking_rewards"`
	Collateral     string           `json:"collateral"`
	StablecoinDebt string           `json:"stablecoin_debt"`
	Positions      []StoredPosition `json:"positions"`
}

// StoredPosition is a serializable snapshot of domain.YieldPosition.
type StoredPosition struct {
	Protocol        string    `json:"protocol"`
	PrincipalPoints string    `json:"principal_points"`
	ExchangedAmount string    `json:"exchanged_amount"`
	Asset           string    `json:"asset"`
	APY             string    `json:"apy"`
	OpenedAt        time.Time `json:"opened_at"`
}

// StoredIdentity is the persisted demo session record.
type StoredIdentity struct {
	Handle    string     `json:"handle"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SaveLedger writes the full ledger snapshot atomically via temp file.
func (s *Store) SaveLedger(ledger *domain.Ledger) error {
	if s == nil || ledger == nil {
		return nil
	}

	stored := StoredLedger{
		Points:         ledger.Points.String(),
		TokenBalance:   ledger.TokenBalance.String(),
		StakedTokens:   ledger.StakedTokens.String(),
		StakingRewards: ledger.StakingRewards.String(),
		Collateral:     ledger.Collateral.String(),
		StablecoinDebt: ledger.StablecoinDebt.String(),
		Positions:      make([]StoredPosition, 0, len(ledger.Positions)),
	}
	for _, pos := range ledger.Positions {
		stored.Positions = append(stored.Positions, StoredPosition{
			Protocol:        pos.Protocol.String(),
			PrincipalPoints: pos.PrincipalPoints.String(),
			ExchangedAmount: pos.ExchangedAmount.String(),
			Asset:           pos.Asset,
			APY:             pos.APY.String(),
			OpenedAt:        pos.OpenedAt,
		})
	}

	return writeJSON(s.ledgerPath, stored)
}

// LoadLedger reads the ledger snapshot. Returns nil when nothing is
// persisted. Fields absent from the stored form keep their defaults so
// older snapshots survive schema additions.
func (s *Store) LoadLedger() (*domain.Ledger, error) {
	if s == nil {
		return nil, nil
	}

	payload, err := os.ReadFile(s.ledgerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read ledger snapshot")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var stored StoredLedger
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, errors.Wrap(err, "decode ledger snapshot")
	}

	ledger := domain.NewLedger()
	if err := assignAmount(&ledger.Points, stored.Points, "points"); err != nil {
		return nil, err
	}
	if err := assignAmount(&ledger.TokenBalance, stored.TokenBalance, "token balance"); err != nil {
		return nil, err
	}
	if err := assignAmount(&ledger.StakedTokens, stored.StakedTokens, "staked tokens"); err != nil {
		return nil, err
	}
	if err := assignAmount(&ledger.StakingRewards, stored.StakingRewards, "staking rewards"); err != nil {
		return nil, err
	}
	if err := assignAmount(&ledger.Collateral, stored.Collateral, "collateral"); err != nil {
		return nil, err
	}
	if err := assignAmount(&ledger.StablecoinDebt, stored.StablecoinDebt, "stablecoin debt"); err != nil {
		return nil, err
	}

	for _, sp := range stored.Positions {
		pos, err := sp.toPosition()
		if err != nil {
			return nil, err
		}
		ledger.Positions = append(ledger.Positions, pos)
	}

	return ledger, nil
}

// SaveIdentity persists the demo session record.
func (s *Store) SaveIdentity(identity domain.Identity) error {
	if s == nil {
		return nil
	}
	return writeJSON(s.identityPath, StoredIdentity{
		Handle:    identity.Handle,
		Active:    identity.Active,
		ExpiresAt: identity.ExpiresAt,
	})
}

// LoadIdentity reads the demo session record, nil when absent.
func (s *Store) LoadIdentity() (*domain.Identity, error) {
	if s == nil {
		return nil, nil
	}

	payload, err := os.ReadFile(s.identityPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read identity record")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var stored StoredIdentity
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, errors.Wrap(err, "decode identity record")
	}

	return &domain.Identity{
		Handle:    stored.Handle,
		Active:    stored.Active,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// Clear removes both snapshots. Missing files are not an error.
func (s *Store) Clear() error {
	if s == nil {
		return nil
	}
	for _, path := range []string{s.ledgerPath, s.identityPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrap(err, "clear ledger state")
		}
	}
	return nil
}

func (sp StoredPosition) toPosition() (domain.YieldPosition, error) {
	principal, err := decimal.NewFromString(sp.PrincipalPoints)
	if err != nil {
		return domain.YieldPosition{}, errors.Wrap(err, "decode position principal")
	}
	exchanged, err := decimal.NewFromString(sp.ExchangedAmount)
	if err != nil {
		return domain.YieldPosition{}, errors.Wrap(err, "decode position exchanged amount")
	}
	apy, err := decimal.NewFromString(sp.APY)
	if err != nil {
		return domain.YieldPosition{}, errors.Wrap(err, "decode position apy")
	}

	return domain.YieldPosition{
		Protocol:        domain.ParseProtocol(sp.Protocol),
		PrincipalPoints: principal,
		ExchangedAmount: exchanged,
		Asset:           sp.Asset,
		APY:             apy,
		OpenedAt:        sp.OpenedAt,
	}, nil
}

func assignAmount(dst *decimal.Decimal, raw, field string) error {
	if raw == "" {
		return nil
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.Wrapf(err, "decode %s", field)
	}
	*dst = parsed
	return nil
}

func writeJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write state temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "persist state")
	}
	return nil
}
