package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/glpi-sla-sync/internal/api/dto"
	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	"github.com/spec-kit/glpi-sla-sync/internal/repository"
	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

// TicketsHandler serves the stored ticket snapshot.
type TicketsHandler struct {
	tickets repository.TicketRepository
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(tickets repository.TicketRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

// List returns stored tickets, optionally filtered by instance.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	filter := repository.TicketFilter{
		Limit:  c.QueryInt("limit", 100),
		Offset: c.QueryInt("offset", 0),
	}
	if raw := c.Query("instance"); raw != "" {
		instance := domain.Instance(raw)
		if instance != domain.InstancePETA && instance != domain.InstanceGMX {
			return apperrors.NewValidationError("unknown instance", map[string]any{"instance": raw})
		}
		filter.Instance = &instance
	}

	tickets, err := h.tickets.ListWithFilter(c.UserContext(), filter)
	if err != nil {
		return apperrors.NewPersistenceError("list tickets", err)
	}
	return c.JSON(fiber.Map{
		"tickets": dto.FromTickets(tickets),
		"count":   len(tickets),
	})
}

func errorCode(err error) string {
	return apperrors.ToDomainError(err).Code
}
