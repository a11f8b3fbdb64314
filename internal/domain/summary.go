package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Numeric decodes an optional JSON field that the authority may send as
// a number, a numeric string, or not at all. Anything unparsable leaves
// the value unset so the caller falls back to local state instead of
// corrupting the ledger.
type Numeric struct {
	Value decimal.Decimal
	Valid bool
}

// UnmarshalJSON never fails: a malformed value simply stays invalid.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	n.Valid = false

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if s == "" {
			return nil
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		n.Value = parsed
		n.Valid = true
		return nil
	}

	parsed, err := decimal.NewFromString(string(data))
	if err != nil {
		return nil
	}
	n.Value = parsed
	n.Valid = true
	return nil
}

// MarshalJSON encodes the value as a string, matching the authority's
// wire format. Unset values encode as null.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value.String())
}

// SummaryStablecoin nests the authority's stablecoin reserves.
type SummaryStablecoin struct {
	Collateral Numeric `json:"collateral"`
	Debt       Numeric `json:"debt"`
}

// Summary is the remote authority's consolidated view of a demo account.
// Every field is optional on the wire.
type Summary struct {
	Address       string            `json:"address"`
	IsDemo        bool              `json:"is_demo"`
	DemoActive    bool              `json:"demo_active"`
	DemoExpiresAt *time.Time        `json:"demo_expires_at,omitempty"`
	Points        Numeric           `json:"points"`
	TokenBalance  Numeric           `json:"token_balance"`
	Stablecoin    SummaryStablecoin `json:"stablecoin"`
}

// LedgerPatch is the authority-owned field subset that reconciliation
// overwrites on the local ledger. Position lifecycle is local-only and
// deliberately absent.
type LedgerPatch struct {
	Points         Numeric
	TokenBalance   Numeric
	Collateral     Numeric
	StablecoinDebt Numeric
}

// Patch extracts the reconcilable fields from the summary.
func (s *Summary) Patch() LedgerPatch {
	if s == nil {
		return LedgerPatch{}
	}
	return LedgerPatch{
		Points:         s.Points,
		TokenBalance:   s.TokenBalance,
		Collateral:     s.Stablecoin.Collateral,
		StablecoinDebt: s.Stablecoin.Debt,
	}
}
