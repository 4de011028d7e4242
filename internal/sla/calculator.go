// Package sla computes SLA consumption for a ticket's two deadline
// dimensions: first response and resolution.
package sla

import (
	"math"
	"time"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
)

// Display percentages are capped at this value; overdue is still computed
// on the uncapped comparison.
const percentCap = 9999

// Result of one SLA dimension. Nil fields mean no applicable SLA target.
type Result struct {
	Percent *float64
	Overdue *bool
}

// Compute returns the consumed percentage of an SLA window and whether the
// window was exceeded.
//
// The SLA is undefined (both fields nil) when start is nil or no positive
// allowed duration exists. A nil end means the clock is still running and
// now is used. Waiting time is subtracted from the elapsed duration; the
// result is floored at zero. The percentage is clamped to [0, 9999] and
// rounded half away from zero to two decimals.
func Compute(start, end *time.Time, allowedSeconds *int64, waitingSeconds int64, now time.Time) Result {
	if start == nil || allowedSeconds == nil || *allowedSeconds <= 0 {
		return Result{}
	}

	until := now
	if end != nil {
		until = *end
	}

	elapsed := until.Sub(*start).Seconds()
	if waitingSeconds > 0 {
		elapsed -= float64(waitingSeconds)
	}
	if elapsed < 0 {
		elapsed = 0
	}

	allowed := float64(*allowedSeconds)
	percent := elapsed / allowed * 100
	if percent > percentCap {
		percent = percentCap
	}
	percent = math.Round(percent*100) / 100

	overdue := elapsed > allowed
	return Result{Percent: &percent, Overdue: &overdue}
}

// FirstResponse computes the first-response dimension: the clock runs from
// opening until the ticket is first taken into account. Waiting time does
// not apply before first contact.
func FirstResponse(t *domain.Ticket, now time.Time) Result {
	return Compute(t.DateOpening, t.DateTakeAccount, t.TimeToOwn, 0, now)
}

// Resolution computes the resolution dimension: the clock runs from opening
// until the ticket is solved or, failing that, closed.
func Resolution(t *domain.Ticket, now time.Time) Result {
	end := t.DateSolve
	if end == nil {
		end = t.DateClose
	}
	var waiting int64
	if t.WaitingDuration != nil {
		waiting = *t.WaitingDuration
	}
	return Compute(t.DateOpening, end, t.TimeToResolve, waiting, now)
}
