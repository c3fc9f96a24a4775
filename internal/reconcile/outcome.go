// Package reconcile holds the result vocabulary shared by the stores that
// mirror Stripe objects.
package reconcile

import "time"

// Outcome describes what a reconciliation write did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
	OutcomeMissing   Outcome = "missing"
	OutcomeDeleted   Outcome = "deleted"
)

// IsStale reports whether an incoming source timestamp is older than the
// stored one. Equal timestamps are applied so replays converge.
func IsStale(incoming, stored time.Time) bool {
	return incoming.Before(stored)
}
