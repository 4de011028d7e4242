package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/glpi-sla-sync/internal/service"
)

// SyncHandler triggers sync runs.
type SyncHandler struct {
	sync *service.SyncService
}

// NewSyncHandler returns a new handler instance.
func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

type instanceResultResponse struct {
	Instance string `json:"instance"`
	Count    int    `json:"count"`
}

type instanceErrorResponse struct {
	Instance string `json:"instance"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

// Run executes a sync cycle and reports per-instance outcomes. One failed
// instance does not fail the invocation; a persistence failure does.
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	report := h.sync.SyncAll(c.UserContext())
	if report.Fatal != nil {
		return report.Fatal
	}

	results := make([]instanceResultResponse, 0, len(report.Results))
	errs := make([]instanceErrorResponse, 0)
	for _, r := range report.Results {
		if r.Err != nil {
			errs = append(errs, instanceErrorResponse{
				Instance: string(r.Instance),
				Code:     errorCode(r.Err),
				Error:    r.Err.Error(),
			})
			continue
		}
		results = append(results, instanceResultResponse{
			Instance: string(r.Instance),
			Count:    r.Count,
		})
	}

	return c.JSON(fiber.Map{
		"ok":      len(errs) == 0,
		"results": results,
		"errors":  errs,
	})
}
