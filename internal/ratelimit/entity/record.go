package entity

import "time"

// Record is one row of the `rate_limits` table, keyed by action and client address.
type Record struct {
	Key     string    `db:"key"`
	Count   int       `db:"count"`
	ResetAt time.Time `db:"reset_at"`
}

// Expired reports whether the window has ended at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ResetAt)
}
