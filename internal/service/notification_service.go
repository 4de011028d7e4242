package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/config"
	"github.com/spec-kit/glpi-sla-sync/internal/events"
)

// NotificationService delivers crossing events to a webhook, best effort.
type NotificationService struct {
	cfg        config.NotificationConfig
	dispatcher events.Dispatcher
	client     *http.Client
	logger     *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(cfg config.NotificationConfig, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		cfg:        cfg,
		dispatcher: dispatcher,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// RegisterHandlers subscribes to the events the service reacts to.
func (s *NotificationService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventSLAThresholdCrossed, s.handleCrossing)
}

// handleCrossing posts the event to the configured webhook. Delivery
// failure is logged and never propagated: alerting must not affect the
// sync outcome.
func (s *NotificationService) handleCrossing(ctx context.Context, event events.Event) error {
	if s.cfg.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("encode crossing event", zap.Error(err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("build webhook request", zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed",
			zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("webhook rejected event",
			zap.String("event_id", event.ID), zap.Int("status", resp.StatusCode))
	}
	return nil
}
