package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

const outboxColumns = `id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at`

const (
	insertOutboxEventSQL = `INSERT INTO outbox_events (` + outboxColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectUnpublishedEventsSQL = `SELECT ` + outboxColumns + ` FROM outbox_events
WHERE published = FALSE ORDER BY created_at, id LIMIT $1`

	markEventPublishedSQL = `UPDATE outbox_events SET published = TRUE, published_at = $2 WHERE id = $1`

	deletePublishedEventsSQL = `DELETE FROM outbox_events WHERE published = TRUE AND published_at < $1`
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db querier
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return newOutboxRepository(pool)
}

func newOutboxRepository(db querier) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create creates a new outbox event within a transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	q, err := txQuerier(tx)
	if err != nil {
		return err
	}

	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	_, err = q.Exec(ctx, insertOutboxEventSQL,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		payload,
		event.CreatedAt,
		event.Published,
		event.PublishedAt,
	)

	return mapError(err)
}

// GetUnpublished retrieves unpublished events, oldest first.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, selectUnpublishedEventsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			event   domain.OutboxEvent
			payload []byte
		)

		if err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&payload,
			&event.CreatedAt,
			&event.Published,
			&event.PublishedAt,
		); err != nil {
			return nil, err
		}

		if err := unmarshalJSON(payload, &event.Payload); err != nil {
			return nil, fmt.Errorf("decode event %s payload: %w", event.ID, err)
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.db.Exec(ctx, markEventPublishedSQL, id, publishedAt)
	return err
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := r.db.Exec(ctx, deletePublishedEventsSQL, before)
	return err
}
