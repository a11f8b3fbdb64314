package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// SecondsPerYear is the fixed year length used by the accrual formula.
// The simplified linear-rate-over-elapsed-seconds model is intentional
// and must stay byte-compatible with what the dashboards display.
const SecondsPerYear = 365 * 24 * 60 * 60

var accrualDenominator = decimal.NewFromInt(100 * SecondsPerYear)

// YieldPosition is an open simulated deposit. Fields are immutable after
// creation; a position can only be closed as a whole.
type YieldPosition struct {
	Protocol        Protocol
	PrincipalPoints decimal.Decimal
	ExchangedAmount decimal.Decimal
	Asset           string
	APY             decimal.Decimal
	OpenedAt        time.Time
}

// NewYieldPosition opens a position by exchanging points at the protocol's
// fixed terms.
func NewYieldPosition(protocol Protocol, principalPoints decimal.Decimal, openedAt time.Time) (YieldPosition, error) {
	if principalPoints.LessThanOrEqual(decimal.Zero) {
		return YieldPosition{}, errors.New("position principal must be greater than zero")
	}

	terms := protocol.Terms()
	return YieldPosition{
		Protocol:        protocol,
		PrincipalPoints: principalPoints,
		ExchangedAmount: principalPoints.Mul(terms.ExchangeRate),
		Asset:           terms.Asset,
		APY:             terms.APY,
		OpenedAt:        openedAt,
	}, nil
}

// Accrued returns the yield earned by the position at the given moment:
// principal * (apy/100) * elapsedSeconds / secondsPerYear.
// Pure and recomputed on every read; a clock behind OpenedAt yields zero
// instead of a negative value.
func (p YieldPosition) Accrued(now time.Time) decimal.Decimal {
	elapsed := now.Sub(p.OpenedAt)
	if elapsed <= 0 {
		return decimal.Zero
	}

	// millisecond-resolution elapsed time, exact in decimal
	elapsedSeconds := decimal.New(elapsed.Milliseconds(), -3)

	// single trailing division keeps whole-year accruals exact
	return p.PrincipalPoints.Mul(p.APY).Mul(elapsedSeconds).Div(accrualDenominator)
}

// YieldPositionView pairs a position with its live accrued earnings.
type YieldPositionView struct {
	YieldPosition
	Earned decimal.Decimal
}
