package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loja-api/internal/events"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (event_id, event_type, key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	fetchPendingSQL = `SELECT id, event_id, event_type, key, payload, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`

	markSentSQL = `UPDATE outbox SET sent_at = $2 WHERE id = ANY($1)`
)

var _ events.Store = (*OutboxRepository)(nil)

// OutboxRepository implements events.Store backed by PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// FetchPending returns up to limit unsent rows, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]events.Record, error) {
	rows, err := r.pool.Query(ctx, fetchPendingSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch outbox")
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (events.Record, error) {
		var rec events.Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Type, &rec.Key, &rec.Payload, &rec.CreatedAt)
		return rec, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetch outbox")
	}
	return records, nil
}

// MarkSent stamps rows ids as delivered.
func (r *OutboxRepository) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, markSentSQL, ids, at); err != nil {
		return errors.Wrap(err, "mark outbox sent")
	}
	return nil
}

func insertOutbox(ctx context.Context, q querier, rec events.Record) error {
	_, err := q.Exec(ctx, insertOutboxSQL, rec.EventID, rec.Type, rec.Key, rec.Payload, rec.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert outbox event %s", rec.EventID)
	}
	return nil
}
