package events

import (
	"time"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLAThresholdCrossed EventType = "sla_threshold_crossed"
	EventSyncCompleted       EventType = "sync_completed"
)

// Event represents a domain event emitted by the sync.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Instance  domain.Instance `json:"instance"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload"`
}

// SLAThresholdCrossedPayload payload.
type SLAThresholdCrossedPayload struct {
	TicketGlpiID int64               `json:"ticket_glpi_id"`
	Dimension    domain.SLADimension `json:"sla_type"`
	OldPercent   *float64            `json:"old_percentage,omitempty"`
	NewPercent   float64             `json:"new_percentage"`
	Threshold    float64             `json:"alert_threshold"`
}

// SyncCompletedPayload payload.
type SyncCompletedPayload struct {
	Count     int `json:"count"`
	Crossings int `json:"crossings"`
}
