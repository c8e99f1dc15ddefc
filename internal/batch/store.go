package batch

import (
	"sync"
	"time"

	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
)

// recipientBatch holds the pending queue for one recipient. The entry mutex
// serializes all mutations; the store's map lock is never acquired while an
// entry lock is held.
type recipientBatch struct {
	mu              sync.Mutex
	pending         []Notification
	windowStartedAt time.Time
	suppressedUntil time.Time
	retryAt         time.Time
}

// RecipientSnapshot is a read-only copy of one recipient's batch state.
type RecipientSnapshot struct {
	RecipientKey    string
	Pending         []Notification
	WindowStartedAt time.Time
	SuppressedUntil time.Time
	RetryAt         time.Time
	LastFlushedAt   time.Time
}

// Store is the process-wide recipient batch arena. Entries are created lazily
// on first notification and removed as soon as a drain leaves them empty.
type Store struct {
	mu          sync.RWMutex
	batches     map[string]*recipientBatch
	lastFlushed map[string]time.Time
}

// NewStore builds an empty batch store.
func NewStore() *Store {
	return &Store{
		batches:     make(map[string]*recipientBatch),
		lastFlushed: make(map[string]time.Time),
	}
}

// withBatch runs fn while holding the recipient's entry lock, creating the
// entry when absent. The map lock is released before fn runs so unrelated
// recipients stay parallel.
func (s *Store) withBatch(key string, fn func(b *recipientBatch)) {
	s.mu.Lock()
	b, ok := s.batches[key]
	if !ok {
		b = &recipientBatch{}
		s.batches[key] = b
	}
	b.mu.Lock()
	s.mu.Unlock()
	defer b.mu.Unlock()
	fn(b)
}

// Drain atomically removes and returns every pending item for the recipient,
// resetting the window and deleting the entry. Draining an unknown or empty
// recipient is a no-op.
func (s *Store) Drain(key string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[key]
	if !ok {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// Invariant guard: the locked entry must still be the one the map holds.
	if current := s.batches[key]; current != b {
		return nil, pkgerrors.New(pkgerrors.CodeStateCorruption, "drained batch does not match locked entry")
	}

	items := b.pending
	b.pending = nil
	b.windowStartedAt = time.Time{}
	b.suppressedUntil = time.Time{}
	b.retryAt = time.Time{}
	delete(s.batches, key)
	return items, nil
}

// Requeue pushes a failed digest back to the head of the recipient's batch so
// arrival order survives the retry, and records when the retry may run.
func (s *Store) Requeue(key string, items []Notification, retryAt time.Time) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	b, ok := s.batches[key]
	if !ok {
		b = &recipientBatch{}
		s.batches[key] = b
	}
	b.mu.Lock()
	s.mu.Unlock()
	defer b.mu.Unlock()

	b.pending = append(append([]Notification{}, items...), b.pending...)
	b.windowStartedAt = items[0].CreatedAt
	b.retryAt = retryAt
}

// MarkDelivered records the recipient's most recent successful flush.
func (s *Store) MarkDelivered(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlushed[key] = at
}

// Keys returns the recipients that currently have a batch entry.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.batches))
	for key := range s.batches {
		keys = append(keys, key)
	}
	return keys
}

// Snapshot copies every batch at a single instant. The map write lock blocks
// concurrent appends for the duration, so no partial interleavings appear.
func (s *Store) Snapshot() []RecipientSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RecipientSnapshot, 0, len(s.batches))
	for key, b := range s.batches {
		b.mu.Lock()
		out = append(out, RecipientSnapshot{
			RecipientKey:    key,
			Pending:         cloneAll(b.pending),
			WindowStartedAt: b.windowStartedAt,
			SuppressedUntil: b.suppressedUntil,
			RetryAt:         b.retryAt,
			LastFlushedAt:   s.lastFlushed[key],
		})
		b.mu.Unlock()
	}
	return out
}

// TotalPending counts pending notifications across all recipients.
func (s *Store) TotalPending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, b := range s.batches {
		b.mu.Lock()
		total += len(b.pending)
		b.mu.Unlock()
	}
	return total
}
