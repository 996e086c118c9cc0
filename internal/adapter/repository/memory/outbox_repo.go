package memory

import (
	"context"
	"time"

	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Create stages an event with the rest of the transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	t.outbox = append(t.outbox, cloneEvent(event))

	return nil
}

// GetUnpublished returns the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var events []*domain.OutboxEvent
	for _, id := range r.store.outboxOrder {
		ev, ok := r.store.outbox[id]
		if !ok || ev.Published {
			continue
		}
		events = append(events, cloneEvent(ev))
		if limit > 0 && len(events) == limit {
			break
		}
	}

	return events, nil
}

// MarkPublished marks an event as published. Unknown ids are ignored.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if ev, ok := r.store.outbox[id]; ok {
		ev.Published = true
		ev.PublishedAt = &publishedAt
	}

	return nil
}

// DeletePublished drops events published before the cutoff.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.outboxOrder[:0]
	for _, id := range r.store.outboxOrder {
		ev := r.store.outbox[id]
		if ev.Published && ev.PublishedAt != nil && ev.PublishedAt.Before(before) {
			delete(r.store.outbox, id)
			continue
		}
		kept = append(kept, id)
	}
	r.store.outboxOrder = kept

	return nil
}
