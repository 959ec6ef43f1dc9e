package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type outboxStatus string

const (
	outboxPending outboxStatus = "pending"
	outboxSent    outboxStatus = "sent"
	outboxFailed  outboxStatus = "failed"
)

type outboxEntry struct {
	seq       uint64
	msg       domain.OutboxMessage
	status    outboxStatus
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository — in-memory transactional outbox с порядком FIFO.
type OutboxRepository struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]*outboxEntry
	now     func() time.Time
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries: make(map[string]*outboxEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет сообщение со статусом pending; ID генерируется, если не задан.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	r.seq++
	now := r.now()
	r.entries[msg.ID] = &outboxEntry{
		seq:       r.seq,
		msg:       msg,
		status:    outboxPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit самых старых pending-сообщений.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	pending := r.pendingEntries()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, e := range pending {
		result = append(result, e.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	pending := r.pendingEntries()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent помечает сообщение опубликованным.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.setStatus(id, outboxSent)
}

// MarkFailed помечает сообщение окончательно неуспешным.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.setStatus(id, outboxFailed)
}

// Pending возвращает копию pending-сообщений в порядке постановки (для тестов).
func (r *OutboxRepository) Pending() []domain.OutboxMessage {
	msgs, _ := r.PullPending(int(^uint(0) >> 1))
	return msgs
}

func (r *OutboxRepository) setStatus(id string, status outboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	entry.status = status
	entry.updatedAt = r.now()
	return nil
}

// DeleteSentBefore удаляет до limit отправленных сообщений, помеченных не позже before.
func (r *OutboxRepository) DeleteSentBefore(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]*outboxEntry, 0)
	for _, e := range r.entries {
		if e.status == outboxSent && !e.updatedAt.After(before) {
			expired = append(expired, e)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].seq < expired[j].seq })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, e := range expired {
		delete(r.entries, e.msg.ID)
	}
	return len(expired), nil
}

// Len возвращает число сообщений в любом статусе.
func (r *OutboxRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *OutboxRepository) pendingEntries() []*outboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*outboxEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status == outboxPending {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

var (
	_ domain.OutboxRepository = (*OutboxRepository)(nil)
	_ domain.OutboxPurger     = (*OutboxRepository)(nil)
)
