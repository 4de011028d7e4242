package domain

import "time"

// SLADimension names one of the two independently tracked deadlines.
type SLADimension string

const (
	DimensionFirst   SLADimension = "FIRST"
	DimensionResolve SLADimension = "RESOLVE"
)

// SLACrossing records a ticket's SLA percentage moving from below to
// at-or-above the alert threshold between two consecutive syncs.
// Append-only; never updated or deleted.
type SLACrossing struct {
	ID           string
	TicketGlpiID int64
	Instance     Instance
	Dimension    SLADimension
	OldPercent   *float64
	NewPercent   float64
	Threshold    float64
	CreatedAt    time.Time
}
