package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	"github.com/spec-kit/glpi-sla-sync/internal/events"
	"github.com/spec-kit/glpi-sla-sync/internal/glpi"
	"github.com/spec-kit/glpi-sla-sync/internal/observability"
	"github.com/spec-kit/glpi-sla-sync/internal/repository"
	"github.com/spec-kit/glpi-sla-sync/internal/sla"
	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

// AlertThreshold is the SLA percentage at which a crossing event fires.
const AlertThreshold = 70.0

// lockTTL bounds how long a stuck run can hold an instance lock.
const lockTTL = 10 * time.Minute

// Locker serializes the read-diff-write sequence per instance so two
// overlapping runs cannot race on the prior-snapshot comparison.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// InstanceResult is the outcome of one instance's cycle.
type InstanceResult struct {
	Instance domain.Instance `json:"instance"`
	Count    int             `json:"count"`
	Err      error           `json:"-"`
}

// RunReport aggregates per-instance outcomes of one invocation.
// Fatal is set when a persistence failure aborted the run.
type RunReport struct {
	Results []InstanceResult
	Fatal   error
}

// SyncService orchestrates the sync cycle across all configured instances.
type SyncService struct {
	instances  []glpi.Config
	tickets    repository.TicketRepository
	crossings  repository.CrossingRepository
	fetcher    glpi.Fetcher
	locker     Locker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// SyncDependencies bundles collaborators for the sync service.
type SyncDependencies struct {
	TicketRepo   repository.TicketRepository
	CrossingRepo repository.CrossingRepository
	Fetcher      glpi.Fetcher
	Locker       Locker
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Now          func() time.Time
}

// NewSyncService constructs the service.
func NewSyncService(instances []glpi.Config, deps SyncDependencies) *SyncService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		instances:  instances,
		tickets:    deps.TicketRepo,
		crossings:  deps.CrossingRepo,
		fetcher:    deps.Fetcher,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
	}
}

// SyncAll processes every configured instance sequentially. A failure in
// one instance is recorded and does not block the others; a persistence
// failure aborts the whole run, since partial writes would desynchronize
// the diff baseline of the next cycle.
func (s *SyncService) SyncAll(ctx context.Context) RunReport {
	if s.metrics != nil {
		s.metrics.SyncRuns.Inc()
	}

	report := RunReport{}
	for _, cfg := range s.instances {
		started := s.now()
		count, err := s.syncInstance(ctx, cfg)

		if s.metrics != nil {
			s.metrics.SyncDuration.WithLabelValues(string(cfg.Instance)).
				Observe(s.now().Sub(started).Seconds())
		}

		result := InstanceResult{Instance: cfg.Instance, Count: count, Err: err}
		report.Results = append(report.Results, result)

		if err == nil {
			continue
		}

		domainErr := apperrors.ToDomainError(err)
		if s.metrics != nil {
			s.metrics.RecordSyncError(string(cfg.Instance), domainErr.Code)
		}
		if domainErr.Code == "PERSISTENCE_FAILED" {
			s.logger.Error("persistence failure, aborting run",
				zap.String("instance", string(cfg.Instance)), zap.Error(err))
			report.Fatal = err
			return report
		}
		s.logger.Warn("instance sync failed",
			zap.String("instance", string(cfg.Instance)), zap.Error(err))
	}
	return report
}

func (s *SyncService) syncInstance(ctx context.Context, cfg glpi.Config) (int, error) {
	lockKey := "glpi-sync:lock:" + string(cfg.Instance)
	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, lockKey, lockTTL)
		if err != nil {
			return 0, apperrors.NewPersistenceError("acquire sync lock", err)
		}
		if !acquired {
			return 0, apperrors.NewDomainError("SYNC_IN_PROGRESS",
				"another sync holds the lock for instance "+string(cfg.Instance), 409, nil)
		}
		defer func() {
			if err := s.locker.ReleaseLock(ctx, lockKey); err != nil {
				s.logger.Warn("release sync lock failed",
					zap.String("instance", string(cfg.Instance)), zap.Error(err))
			}
		}()
	}

	prior, err := s.tickets.ListSnapshots(ctx, cfg.Instance)
	if err != nil {
		return 0, apperrors.NewPersistenceError("load prior snapshot", err)
	}

	fetched, err := s.fetcher.FetchActiveTickets(ctx, cfg)
	if err != nil {
		return 0, err
	}

	now := s.now()
	rows := make([]domain.Ticket, 0, len(fetched))
	var crossings []domain.SLACrossing

	for _, ticket := range fetched {
		row, detected := s.prepareTicket(ticket, prior, now)
		rows = append(rows, row)
		crossings = append(crossings, detected...)
	}

	if err := s.tickets.UpsertBatch(ctx, rows); err != nil {
		return 0, apperrors.NewPersistenceError("upsert tickets", err)
	}
	if err := s.crossings.AppendBatch(ctx, crossings); err != nil {
		return 0, apperrors.NewPersistenceError("append sla history", err)
	}

	s.publishEvents(ctx, cfg.Instance, crossings, len(rows), now)

	if s.metrics != nil {
		s.metrics.TicketsProcessed.WithLabelValues(string(cfg.Instance)).Add(float64(len(rows)))
		for _, c := range crossings {
			s.metrics.Crossings.WithLabelValues(string(cfg.Instance), string(c.Dimension)).Inc()
		}
	}
	s.logger.Info("instance synced",
		zap.String("instance", string(cfg.Instance)),
		zap.Int("tickets", len(rows)),
		zap.Int("crossings", len(crossings)))
	return len(rows), nil
}

// prepareTicket recomputes both SLA dimensions, carries created_at forward
// and detects threshold crossings against the stored baseline.
func (s *SyncService) prepareTicket(ticket domain.Ticket, prior map[int64]domain.TicketSnapshot, now time.Time) (domain.Ticket, []domain.SLACrossing) {
	first := sla.FirstResponse(&ticket, now)
	resolve := sla.Resolution(&ticket, now)

	ticket.SLAPercentFirst = first.Percent
	ticket.SLAPercentResolve = resolve.Percent
	ticket.OverdueFirst = first.Overdue
	ticket.OverdueResolve = resolve.Overdue

	old, seen := prior[ticket.GlpiID]
	if seen {
		ticket.CreatedAt = old.CreatedAt
	} else {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now

	var crossings []domain.SLACrossing
	if crossed(old.SLAPercentFirst, first.Percent) {
		crossings = append(crossings, s.newCrossing(ticket, domain.DimensionFirst, old.SLAPercentFirst, *first.Percent, now))
	}
	if crossed(old.SLAPercentResolve, resolve.Percent) {
		crossings = append(crossings, s.newCrossing(ticket, domain.DimensionResolve, old.SLAPercentResolve, *resolve.Percent, now))
	}
	return ticket, crossings
}

// crossed applies the threshold rule: an unknown prior counts as below
// threshold, so a first-seen overdue ticket alerts exactly once.
func crossed(oldPct, newPct *float64) bool {
	if newPct == nil || *newPct < AlertThreshold {
		return false
	}
	return oldPct == nil || *oldPct < AlertThreshold
}

func (s *SyncService) newCrossing(ticket domain.Ticket, dim domain.SLADimension, old *float64, newPercent float64, now time.Time) domain.SLACrossing {
	return domain.SLACrossing{
		ID:           uuid.NewString(),
		TicketGlpiID: ticket.GlpiID,
		Instance:     ticket.Instance,
		Dimension:    dim,
		OldPercent:   old,
		NewPercent:   newPercent,
		Threshold:    AlertThreshold,
		CreatedAt:    now,
	}
}

func (s *SyncService) publishEvents(ctx context.Context, instance domain.Instance, crossings []domain.SLACrossing, count int, now time.Time) {
	if s.dispatcher == nil {
		return
	}
	for _, c := range crossings {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        c.ID,
			Type:      events.EventSLAThresholdCrossed,
			Instance:  instance,
			Timestamp: now,
			Payload: events.SLAThresholdCrossedPayload{
				TicketGlpiID: c.TicketGlpiID,
				Dimension:    c.Dimension,
				OldPercent:   c.OldPercent,
				NewPercent:   c.NewPercent,
				Threshold:    c.Threshold,
			},
		})
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSyncCompleted,
		Instance:  instance,
		Timestamp: now,
		Payload:   events.SyncCompletedPayload{Count: count, Crossings: len(crossings)},
	})
}
