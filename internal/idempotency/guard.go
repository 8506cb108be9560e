package idempotency

import (
	"time"
)

const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Store is the persistence surface for message locks.
type Store interface {
	TryCreateLock(messageID string, now, expiresAt time.Time) (bool, error)
	UpdateLockStatus(messageID, status string, processedAt time.Time) error
}

// Guard guarantees each message is processed once. The lock row is
// created atomically and never deleted; a FAILED run keeps its record so
// the operator decides about reprocessing, not a timer.
type Guard struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewGuard(store Store, ttl time.Duration) *Guard {
	return &Guard{store: store, ttl: ttl, now: time.Now}
}

// TryLock claims the message. Exactly one concurrent caller gets true.
func (g *Guard) TryLock(messageID string) (bool, error) {
	now := g.now()
	return g.store.TryCreateLock(messageID, now, now.Add(g.ttl))
}

// Complete records the terminal status of a claimed message.
func (g *Guard) Complete(messageID string, success bool) error {
	status := StatusFailed
	if success {
		status = StatusCompleted
	}
	return g.store.UpdateLockStatus(messageID, status, g.now())
}
