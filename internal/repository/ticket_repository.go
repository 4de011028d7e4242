package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
)

// TicketFilter captures listing parameters for the read API.
type TicketFilter struct {
	Instance *domain.Instance
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket snapshot persistence.
type TicketRepository interface {
	// ListSnapshots returns the stored diff baseline for one instance,
	// keyed by remote ticket id.
	ListSnapshots(ctx context.Context, instance domain.Instance) (map[int64]domain.TicketSnapshot, error)
	// UpsertBatch writes all rows of a cycle keyed on (glpi_id, instance).
	// Replaying identical rows leaves the stored state unchanged.
	UpsertBatch(ctx context.Context, tickets []domain.Ticket) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) ListSnapshots(ctx context.Context, instance domain.Instance) (map[int64]domain.TicketSnapshot, error) {
	const query = `
        SELECT glpi_id, sla_percentage_first, sla_percentage_resolve, created_at
        FROM tickets WHERE instance=$1`
	rows, err := r.pool.Query(ctx, query, instance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make(map[int64]domain.TicketSnapshot)
	for rows.Next() {
		var snap domain.TicketSnapshot
		if err := rows.Scan(&snap.GlpiID, &snap.SLAPercentFirst, &snap.SLAPercentResolve, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snapshots[snap.GlpiID] = snap
	}
	return snapshots, rows.Err()
}

func (r *ticketRepository) UpsertBatch(ctx context.Context, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	const query = `
        INSERT INTO tickets (
            glpi_id, instance, title, content, status, entity, category, technician,
            date_opening, date_takeaccount, date_solve, date_close,
            internal_time_to_own, internal_time_to_resolve, waiting_duration,
            sla_percentage_first, sla_percentage_resolve, is_overdue_first, is_overdue_resolve,
            created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
        ON CONFLICT (glpi_id, instance) DO UPDATE SET
            title=EXCLUDED.title, content=EXCLUDED.content, status=EXCLUDED.status,
            entity=EXCLUDED.entity, category=EXCLUDED.category, technician=EXCLUDED.technician,
            date_opening=EXCLUDED.date_opening, date_takeaccount=EXCLUDED.date_takeaccount,
            date_solve=EXCLUDED.date_solve, date_close=EXCLUDED.date_close,
            internal_time_to_own=EXCLUDED.internal_time_to_own,
            internal_time_to_resolve=EXCLUDED.internal_time_to_resolve,
            waiting_duration=EXCLUDED.waiting_duration,
            sla_percentage_first=EXCLUDED.sla_percentage_first,
            sla_percentage_resolve=EXCLUDED.sla_percentage_resolve,
            is_overdue_first=EXCLUDED.is_overdue_first,
            is_overdue_resolve=EXCLUDED.is_overdue_resolve,
            created_at=EXCLUDED.created_at, updated_at=EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(query,
			t.GlpiID, t.Instance, t.Title, t.Content, t.Status, t.Entity, t.Category, t.Technician,
			t.DateOpening, t.DateTakeAccount, t.DateSolve, t.DateClose,
			t.TimeToOwn, t.TimeToResolve, t.WaitingDuration,
			t.SLAPercentFirst, t.SLAPercentResolve, t.OverdueFirst, t.OverdueResolve,
			t.CreatedAt, t.UpdatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range tickets {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	const base = `
        SELECT glpi_id, instance, title, content, status, entity, category, technician,
               date_opening, date_takeaccount, date_solve, date_close,
               internal_time_to_own, internal_time_to_resolve, waiting_duration,
               sla_percentage_first, sla_percentage_resolve, is_overdue_first, is_overdue_resolve,
               created_at, updated_at
        FROM tickets`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := base + ` ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
	args := []any{limit, offset}
	if filter.Instance != nil {
		query = base + ` WHERE instance=$3 ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
		args = append(args, *filter.Instance)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(
			&t.GlpiID, &t.Instance, &t.Title, &t.Content, &t.Status, &t.Entity, &t.Category, &t.Technician,
			&t.DateOpening, &t.DateTakeAccount, &t.DateSolve, &t.DateClose,
			&t.TimeToOwn, &t.TimeToResolve, &t.WaitingDuration,
			&t.SLAPercentFirst, &t.SLAPercentResolve, &t.OverdueFirst, &t.OverdueResolve,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
