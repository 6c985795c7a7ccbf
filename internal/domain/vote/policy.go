package vote

import (
	"math"
	"time"
)

type DenialReason string

const (
	DenialNone          DenialReason = ""
	DenialWindowExpired DenialReason = "window_expired"
	DenialLimitReached  DenialReason = "limit_reached"
)

// Decision is the outcome of evaluating the change policy for one entry
// at one instant.
type Decision struct {
	CanChange            bool
	Reason               DenialReason
	TimeRemainingMinutes int
	ChangesRemaining     int
}

// EvaluateChange decides whether a voter may still change their vote.
// Pure: now is a parameter, no clock is consulted. A change is allowed
// while the time since the first vote is within the entry's window and
// the change count is under its limit.
func EvaluateChange(e *Entry, now time.Time) Decision {
	elapsed := now.Sub(e.FirstVotedAt).Minutes()
	window := float64(e.ChangeWindowMinutes)

	withinWindow := elapsed <= window
	underLimit := e.ChangeCount < e.MaxChanges

	remaining := int(math.Ceil(window - elapsed))
	if remaining < 0 {
		remaining = 0
	}
	changesLeft := e.MaxChanges - e.ChangeCount
	if changesLeft < 0 {
		changesLeft = 0
	}

	d := Decision{
		CanChange:            withinWindow && underLimit,
		TimeRemainingMinutes: remaining,
		ChangesRemaining:     changesLeft,
	}
	if !d.CanChange {
		if !withinWindow {
			d.Reason = DenialWindowExpired
		} else {
			d.Reason = DenialLimitReached
		}
	}
	return d
}
