package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	"github.com/spec-kit/glpi-sla-sync/internal/events"
	"github.com/spec-kit/glpi-sla-sync/internal/glpi"
	"github.com/spec-kit/glpi-sla-sync/internal/repository"
	apperrors "github.com/spec-kit/glpi-sla-sync/pkg/util"
)

// fakeTicketRepo holds stored rows in memory, keyed per instance.
type fakeTicketRepo struct {
	rows        map[domain.Instance]map[int64]domain.Ticket
	upsertCalls int
	failList    bool
	failUpsert  bool
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{rows: map[domain.Instance]map[int64]domain.Ticket{}}
}

func (f *fakeTicketRepo) ListSnapshots(_ context.Context, instance domain.Instance) (map[int64]domain.TicketSnapshot, error) {
	if f.failList {
		return nil, errors.New("boom")
	}
	out := map[int64]domain.TicketSnapshot{}
	for id, row := range f.rows[instance] {
		out[id] = domain.TicketSnapshot{
			GlpiID:            id,
			SLAPercentFirst:   row.SLAPercentFirst,
			SLAPercentResolve: row.SLAPercentResolve,
			CreatedAt:         row.CreatedAt,
		}
	}
	return out, nil
}

func (f *fakeTicketRepo) UpsertBatch(_ context.Context, tickets []domain.Ticket) error {
	if f.failUpsert {
		return errors.New("boom")
	}
	f.upsertCalls++
	for _, t := range tickets {
		if f.rows[t.Instance] == nil {
			f.rows[t.Instance] = map[int64]domain.Ticket{}
		}
		f.rows[t.Instance][t.GlpiID] = t
	}
	return nil
}

func (f *fakeTicketRepo) ListWithFilter(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, nil
}

type fakeCrossingRepo struct {
	appended []domain.SLACrossing
}

func (f *fakeCrossingRepo) AppendBatch(_ context.Context, crossings []domain.SLACrossing) error {
	f.appended = append(f.appended, crossings...)
	return nil
}

// fakeFetcher serves canned tickets per instance.
type fakeFetcher struct {
	tickets map[domain.Instance][]domain.Ticket
	errs    map[domain.Instance]error
	calls   int
}

func (f *fakeFetcher) FetchActiveTickets(_ context.Context, cfg glpi.Config) ([]domain.Ticket, error) {
	f.calls++
	if err := f.errs[cfg.Instance]; err != nil {
		return nil, err
	}
	return f.tickets[cfg.Instance], nil
}

type fakeLocker struct {
	held map[string]bool
}

func (f *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, key string) error {
	delete(f.held, key)
	return nil
}

var baseTime = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }
func i64Ptr(v int64) *int64       { return &v }
func tPtr(t time.Time) *time.Time { return &t }

// openTicket builds a running ticket whose first-response SLA sits at the
// given consumption percentage at baseTime.
func openTicket(id int64, instance domain.Instance, percent float64) domain.Ticket {
	allowed := int64(10000)
	opened := baseTime.Add(-time.Duration(float64(allowed)*percent/100) * time.Second)
	return domain.Ticket{
		GlpiID:      id,
		Instance:    instance,
		DateOpening: tPtr(opened),
		TimeToOwn:   i64Ptr(allowed),
	}
}

func newService(fetcher *fakeFetcher, tickets *fakeTicketRepo, crossings *fakeCrossingRepo, instances ...glpi.Config) *SyncService {
	return NewSyncService(instances, SyncDependencies{
		TicketRepo:   tickets,
		CrossingRepo: crossings,
		Fetcher:      fetcher,
		Locker:       &fakeLocker{},
		Dispatcher:   events.NewInMemoryDispatcher(),
		Logger:       zap.NewNop(),
		Now:          func() time.Time { return baseTime },
	})
}

func petaConfig() glpi.Config {
	return glpi.Config{Instance: domain.InstancePETA}
}

func TestCrossingDetection(t *testing.T) {
	cases := []struct {
		name       string
		prior      *float64
		newPercent float64
		want       int
	}{
		{"first seen above threshold alerts once", nil, 75, 1},
		{"below to above", floatPtr(65), 72, 1},
		{"already above", floatPtr(72), 80, 0},
		{"first seen below", nil, 40, 0},
		{"exactly at threshold", floatPtr(69), 70, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tickets := newFakeTicketRepo()
			if tc.prior != nil {
				tickets.rows[domain.InstancePETA] = map[int64]domain.Ticket{
					1: {GlpiID: 1, Instance: domain.InstancePETA, SLAPercentFirst: tc.prior, CreatedAt: baseTime.Add(-24 * time.Hour)},
				}
			}
			crossings := &fakeCrossingRepo{}
			fetcher := &fakeFetcher{tickets: map[domain.Instance][]domain.Ticket{
				domain.InstancePETA: {openTicket(1, domain.InstancePETA, tc.newPercent)},
			}}

			svc := newService(fetcher, tickets, crossings, petaConfig())
			report := svc.SyncAll(context.Background())

			if report.Fatal != nil || report.Results[0].Err != nil {
				t.Fatalf("unexpected error: %v / %v", report.Fatal, report.Results[0].Err)
			}
			if len(crossings.appended) != tc.want {
				t.Errorf("crossings = %d, want %d", len(crossings.appended), tc.want)
			}
			if tc.want == 1 {
				c := crossings.appended[0]
				if c.Threshold != AlertThreshold {
					t.Errorf("threshold = %v, want %v", c.Threshold, AlertThreshold)
				}
				if (c.OldPercent == nil) != (tc.prior == nil) {
					t.Errorf("old percent presence mismatch: %v vs %v", c.OldPercent, tc.prior)
				}
			}
		})
	}
}

func TestSyncIdempotence(t *testing.T) {
	tickets := newFakeTicketRepo()
	crossings := &fakeCrossingRepo{}
	fetcher := &fakeFetcher{tickets: map[domain.Instance][]domain.Ticket{
		domain.InstancePETA: {
			openTicket(1, domain.InstancePETA, 85),
			openTicket(2, domain.InstancePETA, 30),
		},
	}}

	svc := newService(fetcher, tickets, crossings, petaConfig())

	first := svc.SyncAll(context.Background())
	if first.Results[0].Count != 2 {
		t.Fatalf("first run count = %d, want 2", first.Results[0].Count)
	}
	if len(crossings.appended) != 1 {
		t.Fatalf("first run crossings = %d, want 1", len(crossings.appended))
	}
	storedAfterFirst := tickets.rows[domain.InstancePETA][1]

	second := svc.SyncAll(context.Background())
	if second.Results[0].Count != 2 {
		t.Fatalf("second run count = %d, want 2", second.Results[0].Count)
	}
	if len(crossings.appended) != 1 {
		t.Errorf("second run added crossings: total %d, want still 1", len(crossings.appended))
	}

	storedAfterSecond := tickets.rows[domain.InstancePETA][1]
	if !storedAfterSecond.CreatedAt.Equal(storedAfterFirst.CreatedAt) {
		t.Error("created_at must be carried forward unchanged")
	}
	if *storedAfterSecond.SLAPercentFirst != *storedAfterFirst.SLAPercentFirst {
		t.Error("identical input must produce identical stored rows")
	}
}

func TestCreatedAtCarriedForward(t *testing.T) {
	origin := baseTime.Add(-72 * time.Hour)
	tickets := newFakeTicketRepo()
	tickets.rows[domain.InstancePETA] = map[int64]domain.Ticket{
		1: {GlpiID: 1, Instance: domain.InstancePETA, CreatedAt: origin},
	}
	crossings := &fakeCrossingRepo{}
	fetcher := &fakeFetcher{tickets: map[domain.Instance][]domain.Ticket{
		domain.InstancePETA: {openTicket(1, domain.InstancePETA, 10), openTicket(2, domain.InstancePETA, 10)},
	}}

	svc := newService(fetcher, tickets, crossings, petaConfig())
	svc.SyncAll(context.Background())

	stored := tickets.rows[domain.InstancePETA]
	if !stored[1].CreatedAt.Equal(origin) {
		t.Errorf("known ticket created_at = %v, want %v", stored[1].CreatedAt, origin)
	}
	if !stored[2].CreatedAt.Equal(baseTime) {
		t.Errorf("new ticket created_at = %v, want now (%v)", stored[2].CreatedAt, baseTime)
	}
	if !stored[1].UpdatedAt.Equal(baseTime) {
		t.Errorf("updated_at = %v, want now", stored[1].UpdatedAt)
	}
}

func TestInstanceFailureDoesNotBlockOthers(t *testing.T) {
	tickets := newFakeTicketRepo()
	crossings := &fakeCrossingRepo{}
	fetcher := &fakeFetcher{
		tickets: map[domain.Instance][]domain.Ticket{
			domain.InstanceGMX: {openTicket(5, domain.InstanceGMX, 20)},
		},
		errs: map[domain.Instance]error{
			domain.InstancePETA: apperrors.NewAuthenticationError("both strategies failed", nil),
		},
	}

	svc := newService(fetcher, tickets, crossings,
		petaConfig(), glpi.Config{Instance: domain.InstanceGMX})
	report := svc.SyncAll(context.Background())

	if report.Fatal != nil {
		t.Fatalf("authentication failure must not abort the run: %v", report.Fatal)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}
	if report.Results[0].Err == nil {
		t.Error("PETA result should carry its error")
	}
	if report.Results[1].Err != nil || report.Results[1].Count != 1 {
		t.Errorf("GMX result = (%d, %v), want (1, nil)", report.Results[1].Count, report.Results[1].Err)
	}
}

func TestPersistenceFailureAbortsRun(t *testing.T) {
	tickets := newFakeTicketRepo()
	tickets.failUpsert = true
	crossings := &fakeCrossingRepo{}
	fetcher := &fakeFetcher{tickets: map[domain.Instance][]domain.Ticket{
		domain.InstancePETA: {openTicket(1, domain.InstancePETA, 10)},
	}}

	svc := newService(fetcher, tickets, crossings,
		petaConfig(), glpi.Config{Instance: domain.InstanceGMX})
	report := svc.SyncAll(context.Background())

	if report.Fatal == nil {
		t.Fatal("upsert failure must abort the run")
	}
	if len(report.Results) != 1 {
		t.Errorf("remaining instances must not run after a persistence failure, got %d results", len(report.Results))
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
}

func TestHeldLockSkipsInstance(t *testing.T) {
	tickets := newFakeTicketRepo()
	crossings := &fakeCrossingRepo{}
	fetcher := &fakeFetcher{}
	locker := &fakeLocker{held: map[string]bool{"glpi-sync:lock:PETA": true}}

	svc := NewSyncService([]glpi.Config{petaConfig()}, SyncDependencies{
		TicketRepo:   tickets,
		CrossingRepo: crossings,
		Fetcher:      fetcher,
		Locker:       locker,
		Logger:       zap.NewNop(),
		Now:          func() time.Time { return baseTime },
	})
	report := svc.SyncAll(context.Background())

	if report.Results[0].Err == nil {
		t.Fatal("held lock must fail the instance for this run")
	}
	if fetcher.calls != 0 {
		t.Errorf("fetch must not run while the lock is held, got %d calls", fetcher.calls)
	}
}

func TestCrossingEventsPublished(t *testing.T) {
	tickets := newFakeTicketRepo()
	crossings := &fakeCrossingRepo{}
	fetcher := &fakeFetcher{tickets: map[domain.Instance][]domain.Ticket{
		domain.InstancePETA: {openTicket(1, domain.InstancePETA, 90)},
	}}

	dispatcher := events.NewInMemoryDispatcher()
	var received []events.Event
	dispatcher.Subscribe(events.EventSLAThresholdCrossed, func(_ context.Context, e events.Event) error {
		received = append(received, e)
		return nil
	})

	svc := NewSyncService([]glpi.Config{petaConfig()}, SyncDependencies{
		TicketRepo:   tickets,
		CrossingRepo: crossings,
		Fetcher:      fetcher,
		Locker:       &fakeLocker{},
		Dispatcher:   dispatcher,
		Logger:       zap.NewNop(),
		Now:          func() time.Time { return baseTime },
	})
	svc.SyncAll(context.Background())

	if len(received) != 1 {
		t.Fatalf("published events = %d, want 1", len(received))
	}
	payload, ok := received[0].Payload.(events.SLAThresholdCrossedPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", received[0].Payload)
	}
	if payload.TicketGlpiID != 1 || payload.Dimension != domain.DimensionFirst {
		t.Errorf("payload = %+v", payload)
	}
}
