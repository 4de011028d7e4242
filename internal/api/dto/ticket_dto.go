package dto

import (
	"time"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
)

// TicketResponse is the wire shape of one stored ticket snapshot.
type TicketResponse struct {
	GlpiID   int64  `json:"glpi_id"`
	Instance string `json:"instance"`

	Title      *string `json:"title"`
	Content    *string `json:"content,omitempty"`
	Status     *int    `json:"status"`
	Entity     *string `json:"entity"`
	Category   *string `json:"category"`
	Technician *string `json:"technician"`

	DateOpening     *time.Time `json:"date_opening"`
	DateTakeAccount *time.Time `json:"date_takeaccount"`
	DateSolve       *time.Time `json:"date_solve"`
	DateClose       *time.Time `json:"date_close"`

	TimeToOwn       *int64 `json:"internal_time_to_own"`
	TimeToResolve   *int64 `json:"internal_time_to_resolve"`
	WaitingDuration *int64 `json:"waiting_duration"`

	SLAPercentFirst   *float64 `json:"sla_percentage_first"`
	SLAPercentResolve *float64 `json:"sla_percentage_resolve"`
	OverdueFirst      *bool    `json:"is_overdue_first"`
	OverdueResolve    *bool    `json:"is_overdue_resolve"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromTicket maps a domain ticket to its response shape.
func FromTicket(t domain.Ticket) TicketResponse {
	return TicketResponse{
		GlpiID:            t.GlpiID,
		Instance:          string(t.Instance),
		Title:             t.Title,
		Content:           t.Content,
		Status:            t.Status,
		Entity:            t.Entity,
		Category:          t.Category,
		Technician:        t.Technician,
		DateOpening:       t.DateOpening,
		DateTakeAccount:   t.DateTakeAccount,
		DateSolve:         t.DateSolve,
		DateClose:         t.DateClose,
		TimeToOwn:         t.TimeToOwn,
		TimeToResolve:     t.TimeToResolve,
		WaitingDuration:   t.WaitingDuration,
		SLAPercentFirst:   t.SLAPercentFirst,
		SLAPercentResolve: t.SLAPercentResolve,
		OverdueFirst:      t.OverdueFirst,
		OverdueResolve:    t.OverdueResolve,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// FromTickets maps a slice of domain tickets.
func FromTickets(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, FromTicket(t))
	}
	return out
}
