package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/glpi-sla-sync/internal/domain"
)

// CrossingRepository appends SLA threshold-crossing events. The history is
// append-only; nothing in the sync updates or deletes rows.
type CrossingRepository interface {
	AppendBatch(ctx context.Context, crossings []domain.SLACrossing) error
}

type crossingRepository struct {
	pool *pgxpool.Pool
}

// NewCrossingRepository instantiates repository.
func NewCrossingRepository(pool *pgxpool.Pool) CrossingRepository {
	return &crossingRepository{pool: pool}
}

func (r *crossingRepository) AppendBatch(ctx context.Context, crossings []domain.SLACrossing) error {
	if len(crossings) == 0 {
		return nil
	}

	const query = `
        INSERT INTO sla_history (
            id, ticket_glpi_id, instance, sla_type,
            old_percentage, new_percentage, alert_threshold, created_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	batch := &pgx.Batch{}
	for _, c := range crossings {
		batch.Queue(query,
			c.ID, c.TicketGlpiID, c.Instance, c.Dimension,
			c.OldPercent, c.NewPercent, c.Threshold, c.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range crossings {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
