package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	stored1, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregatePurchase,
		AggregateID:   "1",
		EventType:     domain.EventPurchaseCreated,
		Payload:       []byte(`{"purchase_id":1}`),
	})
	if err != nil {
		t.Fatalf("enqueue msg without id: %v", err)
	}
	if stored1.ID == "" {
		t.Fatal("expected generated id for outbox message")
	}

	fixed := domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: domain.AggregatePurchase,
		AggregateID:   "2",
		EventType:     domain.EventPurchaseCreated,
		Payload:       []byte(`{"purchase_id":2}`),
	}
	stored2, err := repo.Enqueue(fixed)
	if err != nil {
		t.Fatalf("enqueue msg with id: %v", err)
	}
	if stored2.ID != fixed.ID {
		t.Fatalf("expected fixed id %q, got %q", fixed.ID, stored2.ID)
	}

	pending, err := repo.PullPending(0)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats before marks: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats before marks: %+v", stats)
	}

	if err := repo.MarkSent(stored1.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(stored2.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	after, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending after marks: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expected no pending after marks, got %d", len(after))
	}
}

func TestOutboxRepository_PostgresMissingRows(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkSent("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark sent missing id, got %v", err)
	}
	if err := repo.MarkFailed("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark failed missing id, got %v", err)
	}
}

func TestOutboxRepository_PostgresPullOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	first, err := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregatePurchase, AggregateID: "old", EventType: domain.EventPurchaseCreated, Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregatePurchase, AggregateID: "new", EventType: domain.EventPurchaseCreated, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	pending, err := repo.PullPending(1)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected oldest message first, got %+v", pending)
	}
}

func TestOutboxRepository_PostgresDeleteSentBefore(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)
	purger, ok := repo.(domain.OutboxPurger)
	if !ok {
		t.Fatal("postgres outbox must support cleanup")
	}

	var ids []string
	for _, aggregateID := range []string{"1", "2", "3"} {
		msg, err := repo.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregatePurchase, AggregateID: aggregateID, EventType: domain.EventPurchaseCreated, Payload: []byte(`{}`)})
		if err != nil {
			t.Fatalf("enqueue %s: %v", aggregateID, err)
		}
		ids = append(ids, msg.ID)
	}
	if err := repo.MarkSent(ids[0]); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(ids[1]); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	deleted, err := purger.DeleteSentBefore(time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("delete with old cutoff: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected fresh sent message to survive, deleted %d", deleted)
	}

	deleted, err = purger.DeleteSentBefore(time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected only the sent message to be deleted, got %d", deleted)
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != ids[2] {
		t.Fatalf("pending message must survive cleanup, got %+v", pending)
	}
}
