// Package ledger holds the demo portfolio state and its transaction
// operations.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/loyaltyx/demoledger/internal/domain"
)

// SnapshotStore persists the full ledger after every committed operation.
type SnapshotStore interface {
	SaveLedger(*domain.Ledger) error
	LoadLedger() (*domain.Ledger, error)
}

// Journal records committed operations for the dashboard stream.
type Journal interface {
	Append(domain.OpEvent) error
}

// Receipt describes a committed operation.
type Receipt struct {
	ID      string
	Message string
}

// Service owns the single demo ledger instance. Operations validate
// before mutating so a rejection leaves the ledger untouched, and every
// commit snapshots to the store synchronously.
type Service struct {
	mu      sync.RWMutex
	ledger  *domain.Ledger
	store   SnapshotStore
	journal Journal
	logger  *zap.Logger
}

// NewService creates the ledger service, restoring a persisted snapshot
// when one exists.
func NewService(store SnapshotStore, journal Journal, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		ledger:  domain.NewLedger(),
		store:   store,
		journal: journal,
		logger:  logger,
	}

	if store != nil {
		restored, err := store.LoadLedger()
		if err != nil {
			logger.Warn("failed to restore ledger snapshot", zap.Error(err))
		} else if restored != nil {
			s.ledger = restored
		}
	}

	return s
}

// DepositToYield exchanges points for a yield position at the protocol's
// fixed terms.
func (s *Service) DepositToYield(protocol domain.Protocol, amountPoints decimal.Decimal) (*Receipt, error) {
	if amountPoints.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount("deposit", amountPoints)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amountPoints.GreaterThan(s.ledger.Points) {
		return nil, domain.ErrInsufficientBalance(s.ledger.Points, amountPoints)
	}

	now := time.Now()
	pos, err := domain.NewYieldPosition(protocol, amountPoints, now)
	if err != nil {
		return nil, err
	}

	s.ledger.Points = s.ledger.Points.Sub(amountPoints)
	s.ledger.Positions = append(s.ledger.Positions, pos)

	msg := fmt.Sprintf("exchanged %s points for %s %s", amountPoints.String(), pos.ExchangedAmount.String(), pos.Asset)
	return s.commit(domain.OpDeposit, amountPoints.String(), pos.Protocol.String(), msg, now), nil
}

// WithdrawFromYield closes a position entirely, returning the principal
// plus accrued yield to the points balance. This is the one place newly
// created value enters the ledger.
func (s *Service) WithdrawFromYield(positionIndex int) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if positionIndex < 0 || positionIndex >= len(s.ledger.Positions) {
		return nil, domain.ErrInvalidPosition(positionIndex, len(s.ledger.Positions))
	}

	now := time.Now()
	pos := s.ledger.Positions[positionIndex]
	earned := pos.Accrued(now)
	totalReturn := pos.PrincipalPoints.Add(earned)

	s.ledger.Points = s.ledger.Points.Add(totalReturn)
	s.ledger.Positions = append(s.ledger.Positions[:positionIndex], s.ledger.Positions[positionIndex+1:]...)

	msg := fmt.Sprintf("withdrew %s points (%s principal + %s earned)", totalReturn.String(), pos.PrincipalPoints.String(), earned.String())
	return s.commit(domain.OpWithdraw, totalReturn.String(), pos.Protocol.String(), msg, now), nil
}

// MintStablecoin issues LUSD against locked points at the fixed
// over-collateralization ratio.
func (s *Service) MintStablecoin(lusdAmount decimal.Decimal) (*Receipt, error) {
	if lusdAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount("mint", lusdAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	required := domain.RequiredCollateral(lusdAmount)
	if required.GreaterThan(s.ledger.Points) {
		return nil, domain.ErrInsufficientCollateral(s.ledger.Points, required)
	}

	s.ledger.Points = s.ledger.Points.Sub(required)
	s.ledger.Collateral = s.ledger.Collateral.Add(required)
	s.ledger.StablecoinDebt = s.ledger.StablecoinDebt.Add(lusdAmount)

	msg := fmt.Sprintf("minted %s LUSD against %s points collateral", lusdAmount.String(), required.String())
	return s.commit(domain.OpMint, lusdAmount.String(), "", msg, time.Now()), nil
}

// RedeemStablecoin burns LUSD and releases collateral in exact
// proportion to the fraction of total debt redeemed.
func (s *Service) RedeemStablecoin(lusdAmount decimal.Decimal) (*Receipt, error) {
	if lusdAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount("redeem", lusdAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a zero-debt ledger must reject rather than divide by zero
	if s.ledger.StablecoinDebt.IsZero() || lusdAmount.GreaterThan(s.ledger.StablecoinDebt) {
		return nil, domain.ErrInsufficientDebt(s.ledger.StablecoinDebt, lusdAmount)
	}

	// multiply before dividing so full redemptions release the exact
	// collateral with no residue
	released := s.ledger.Collateral.Mul(lusdAmount).Div(s.ledger.StablecoinDebt)

	s.ledger.Points = s.ledger.Points.Add(released)
	s.ledger.Collateral = s.ledger.Collateral.Sub(released)
	s.ledger.StablecoinDebt = s.ledger.StablecoinDebt.Sub(lusdAmount)

	msg := fmt.Sprintf("redeemed %s LUSD, released %s points collateral", lusdAmount.String(), released.String())
	return s.commit(domain.OpRedeem, lusdAmount.String(), "", msg, time.Now()), nil
}

// Stake moves tokens from the free balance into the staked pool.
func (s *Service) Stake(amountTokens decimal.Decimal) (*Receipt, error) {
	if amountTokens.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount("stake", amountTokens)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amountTokens.GreaterThan(s.ledger.TokenBalance) {
		return nil, domain.ErrInsufficientTokens(s.ledger.TokenBalance, amountTokens)
	}

	s.ledger.TokenBalance = s.ledger.TokenBalance.Sub(amountTokens)
	s.ledger.StakedTokens = s.ledger.StakedTokens.Add(amountTokens)

	msg := fmt.Sprintf("staked %s tokens", amountTokens.String())
	return s.commit(domain.OpStake, amountTokens.String(), "", msg, time.Now()), nil
}

// Unstake returns tokens to the free balance and claims all accumulated
// staking rewards into points, whatever the amount unstaked.
func (s *Service) Unstake(amountTokens decimal.Decimal) (*Receipt, error) {
	if amountTokens.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidAmount("unstake", amountTokens)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amountTokens.GreaterThan(s.ledger.StakedTokens) {
		return nil, domain.ErrInsufficientStake(s.ledger.StakedTokens, amountTokens)
	}

	rewards := s.ledger.StakingRewards
	s.ledger.TokenBalance = s.ledger.TokenBalance.Add(amountTokens)
	s.ledger.StakedTokens = s.ledger.StakedTokens.Sub(amountTokens)
	s.ledger.Points = s.ledger.Points.Add(rewards)
	s.ledger.StakingRewards = decimal.Zero

	msg := fmt.Sprintf("unstaked %s tokens, claimed %s points of rewards", amountTokens.String(), rewards.String())
	return s.commit(domain.OpUnstake, amountTokens.String(), "", msg, time.Now()), nil
}

// ApplyPatch overwrites the authority-owned fields with reconciled
// values. Positions are never touched: their lifecycle is local-only.
// Unset or negative values keep the current local state.
func (s *Service) ApplyPatch(patch domain.LedgerPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applyField(&s.ledger.Points, patch.Points)
	applyField(&s.ledger.TokenBalance, patch.TokenBalance)
	applyField(&s.ledger.Collateral, patch.Collateral)
	applyField(&s.ledger.StablecoinDebt, patch.StablecoinDebt)

	s.commit(domain.OpReconciled, "", "", "applied authority summary", time.Now())
}

// Reset discards all state and returns the ledger to the default demo
// grant. Callers are responsible for clearing persisted snapshots.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = domain.NewLedger()
}

func applyField(dst *decimal.Decimal, value domain.Numeric) {
	if !value.Valid || value.Value.IsNegative() {
		return
	}
	*dst = value.Value
}

// commit snapshots and journals a mutation already applied under the
// lock. Persistence failure is non-fatal: the in-memory ledger stays
// authoritative for the session.
func (s *Service) commit(kind domain.OpKind, amount, protocol, msg string, at time.Time) *Receipt {
	if s.store != nil {
		if err := s.store.SaveLedger(s.ledger); err != nil {
			s.logger.Warn("failed to persist ledger snapshot", zap.Error(err))
		}
	}

	event := domain.OpEvent{
		ID:       uuid.New().String(),
		Kind:     kind,
		At:       at,
		Amount:   amount,
		Protocol: protocol,
		Message:  msg,
		Points:   s.ledger.Points.String(),
	}
	if s.journal != nil {
		if err := s.journal.Append(event); err != nil {
			s.logger.Warn("failed to journal operation", zap.Error(err))
		}
	}

	s.logger.Info("ledger operation committed",
		zap.String("kind", string(kind)),
		zap.String("amount", amount),
		zap.String("points", event.Points))

	return &Receipt{ID: event.ID, Message: msg}
}
