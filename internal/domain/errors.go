package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RejectionKind classifies why a transaction operation was rejected.
type RejectionKind string

const (
	RejectInsufficientBalance    RejectionKind = "insufficient_balance"
	RejectInsufficientTokens     RejectionKind = "insufficient_tokens"
	RejectInsufficientStake      RejectionKind = "insufficient_stake"
	RejectInsufficientCollateral RejectionKind = "insufficient_collateral"
	RejectInsufficientDebt       RejectionKind = "insufficient_debt"
	RejectInvalidPosition        RejectionKind = "invalid_position"
	RejectInvalidAmount          RejectionKind = "invalid_amount"
)

// ValidationError is a caller-correctable rejection of a transaction
// operation. The ledger is guaranteed untouched when one is returned.
type ValidationError struct {
	Kind   RejectionKind
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a business-rule rejection as
// opposed to an infrastructure failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RejectionOf extracts the rejection kind from err, or "" if err is not
// a validation error.
func RejectionOf(err error) RejectionKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

func ErrInsufficientBalance(have, need decimal.Decimal) *ValidationError {
	return &ValidationError{
		Kind:   RejectInsufficientBalance,
		Reason: fmt.Sprintf("insufficient points balance: have %s need %s", have.String(), need.String()),
	}
}

func ErrInsufficientTokens(have, need decimal.Decimal) *ValidationError {
	return &ValidationError{
		Kind:   RejectInsufficientTokens,
		Reason: fmt.Sprintf("insufficient token balance: have %s need %s", have.String(), need.String()),
	}
}

func ErrInsufficientStake(have, need decimal.Decimal) *ValidationError {
	return &ValidationError{
		Kind:   RejectInsufficientStake,
		Reason: fmt.Sprintf("insufficient staked tokens: have %s need %s", have.String(), need.String()),
	}
}

func ErrInsufficientCollateral(have, need decimal.Decimal) *ValidationError {
	return &ValidationError{
		Kind:   RejectInsufficientCollateral,
		Reason: fmt.Sprintf("insufficient points for collateral: have %s need %s", have.String(), need.String()),
	}
}

func ErrInsufficientDebt(have, requested decimal.Decimal) *ValidationError {
	return &ValidationError{
		Kind:   RejectInsufficientDebt,
		Reason: fmt.Sprintf("insufficient stablecoin debt: outstanding %s requested %s", have.String(), requested.String()),
	}
}

func ErrInvalidAmount(op string, amount decimal.Decimal) *ValidationError {
	return &ValidationError{
		Kind:   RejectInvalidAmount,
		Reason: fmt.Sprintf("%s amount must be positive, got %s", op, amount.String()),
	}
}

func ErrInvalidPosition(index, count int) *ValidationError {
	return &ValidationError{
		Kind:   RejectInvalidPosition,
		Reason: fmt.Sprintf("invalid position index %d: %d positions open", index, count),
	}
}
