package domain

import "time"

// Identity is the ephemeral demo account handle. It keys the ledger and
// is never shared with real-wallet state.
type Identity struct {
	Handle    string
	Active    bool
	ExpiresAt *time.Time
}

// Expired reports whether the authority's demo window has lapsed.
// An identity without a window never expires.
func (i *Identity) Expired(now time.Time) bool {
	if i == nil || i.ExpiresAt == nil {
		return false
	}
	return !now.Before(*i.ExpiresAt)
}
