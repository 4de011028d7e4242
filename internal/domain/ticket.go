package domain

import "time"

// Instance identifies one of the configured GLPI deployments.
type Instance string

const (
	InstancePETA Instance = "PETA"
	InstanceGMX  Instance = "GMX"
)

// GLPI ticket status codes.
const (
	StatusNew      = 1
	StatusAssigned = 2
	StatusPlanned  = 3
	StatusWaiting  = 4
	StatusSolved   = 5
	StatusClosed   = 6
)

// ActiveStatuses are the status codes ingested by the sync. Solved and
// closed tickets are excluded.
var ActiveStatuses = []int{StatusNew, StatusAssigned, StatusPlanned, StatusWaiting}

// IsActiveStatus reports whether code belongs to the active set.
func IsActiveStatus(code int) bool {
	for _, s := range ActiveStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// Ticket is one remote ticket snapshot. Identity is (GlpiID, Instance);
// nil pointer fields mean the value is not known on the remote side.
type Ticket struct {
	GlpiID   int64
	Instance Instance

	Title      *string
	Content    *string
	Status     *int
	Entity     *string
	Category   *string
	Technician *string

	DateOpening     *time.Time
	DateTakeAccount *time.Time
	DateSolve       *time.Time
	DateClose       *time.Time

	// SLA targets and accumulated waiting time, in seconds.
	TimeToOwn       *int64
	TimeToResolve   *int64
	WaitingDuration *int64

	// Derived each cycle, never treated as source of truth.
	SLAPercentFirst   *float64
	SLAPercentResolve *float64
	OverdueFirst      *bool
	OverdueResolve    *bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TicketSnapshot is the projection of a stored row used as the diff
// baseline for crossing detection.
type TicketSnapshot struct {
	GlpiID            int64
	SLAPercentFirst   *float64
	SLAPercentResolve *float64
	CreatedAt         time.Time
}
