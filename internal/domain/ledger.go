// Package domain defines the core data structures of the demo portfolio ledger.
package domain

import "github.com/shopspring/decimal"

// Default balances granted when a demo session starts.
var (
	DefaultPoints       = decimal.NewFromInt(5000)
	DefaultTokenBalance = decimal.NewFromInt(10000)
)

// Stablecoin issuance parameters: minting 1 LUSD locks
// MintRatio * CollateralRatio points as collateral.
var (
	MintRatio       = decimal.NewFromInt(100)
	CollateralRatio = decimal.NewFromFloat(1.5)
)

// Ledger is the aggregate of all demo balances and open yield positions.
// One ledger exists per demo identity.
type Ledger struct {
	Points         decimal.Decimal
	TokenBalance   decimal.Decimal
	StakedTokens   decimal.Decimal
	StakingRewards decimal.Decimal
	Collateral     decimal.Decimal
	StablecoinDebt decimal.Decimal
	Positions      []YieldPosition
}

// NewLedger creates a ledger with the default demo grant.
func NewLedger() *Ledger {
	return &Ledger{
		Points:         DefaultPoints,
		TokenBalance:   DefaultTokenBalance,
		StakedTokens:   decimal.Zero,
		StakingRewards: decimal.Zero,
		Collateral:     decimal.Zero,
		StablecoinDebt: decimal.Zero,
	}
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Positions = make([]YieldPosition, len(l.Positions))
	copy(clone.Positions, l.Positions)
	return &clone
}

// RequiredCollateral returns the points that must be locked to mint
// the given amount of LUSD.
func RequiredCollateral(lusdAmount decimal.Decimal) decimal.Decimal {
	return lusdAmount.Mul(MintRatio).Mul(CollateralRatio)
}
