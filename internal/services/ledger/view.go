package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/loyaltyx/demoledger/internal/domain"
)

// Points returns the current points balance.
func (s *Service) Points() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Points
}

// TokenBalance returns the free token balance.
func (s *Service) TokenBalance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.TokenBalance
}

// StakedTokens returns the staked token balance.
func (s *Service) StakedTokens() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.StakedTokens
}

// StakingRewards returns accrued but unclaimed staking rewards.
func (s *Service) StakingRewards() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.StakingRewards
}

// Collateral returns the points locked against stablecoin debt.
func (s *Service) Collateral() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Collateral
}

// StablecoinDebt returns the outstanding LUSD supply.
func (s *Service) StablecoinDebt() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.StablecoinDebt
}

// Snapshot returns a deep copy of the whole ledger.
func (s *Service) Snapshot() *domain.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Clone()
}

// PositionsWithEarnings maps the accrual calculator over the open
// positions. Earnings are derived on every read, never stored, so the
// values stay correct without any background timer.
func (s *Service) PositionsWithEarnings() []domain.YieldPositionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	views := make([]domain.YieldPositionView, 0, len(s.ledger.Positions))
	for _, pos := range s.ledger.Positions {
		views = append(views, domain.YieldPositionView{
			YieldPosition: pos,
			Earned:        pos.Accrued(now),
		})
	}
	return views
}
