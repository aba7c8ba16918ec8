package relay

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process relay. Expiry is tracked in a min-heap so a sweep only
// touches entries that are actually due.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	onExpire func(id string)
	entries  map[string]Entry
	queue    expiryQueue
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		ttl:      o.ttl,
		now:      o.now,
		onExpire: o.onExpire,
		entries:  make(map[string]Entry),
	}
}

func (s *MemoryStore) Mode() string { return "in-memory" }

// TTL reports the configured entry lifetime.
func (s *MemoryStore) TTL() time.Duration { return s.ttl }

func (s *MemoryStore) Put(_ context.Context, id string, payload []byte, contentType string) error {
	now := s.now()

	s.mu.Lock()
	expired := s.sweepLocked(now)
	s.entries[id] = Entry{
		Payload:     clonePayload(payload),
		ContentType: contentType,
		UpdatedAt:   now,
	}
	heap.Push(&s.queue, expiryItem{id: id, updatedAt: now, expiresAt: now.Add(s.ttl)})
	s.mu.Unlock()

	s.notifyExpired(expired)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	now := s.now()

	s.mu.Lock()
	expired := s.sweepLocked(now)
	entry, ok := s.entries[id]
	if ok && now.Sub(entry.UpdatedAt) > s.ttl {
		ok = false
	}
	s.mu.Unlock()

	s.notifyExpired(expired)
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Payload = clonePayload(entry.Payload)
	return entry, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	now := s.now()

	s.mu.Lock()
	expired := s.sweepLocked(now)
	delete(s.entries, id)
	s.mu.Unlock()

	s.notifyExpired(expired)
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	expired := s.sweepLocked(now)
	n := len(s.entries)
	s.mu.Unlock()

	s.notifyExpired(expired)
	return n, nil
}

// Sweep removes every expired entry and returns their identifiers.
func (s *MemoryStore) Sweep() []string {
	now := s.now()

	s.mu.Lock()
	expired := s.sweepLocked(now)
	s.mu.Unlock()

	s.notifyExpired(expired)
	return expired
}

// StartJanitor sweeps on a ticker until ctx is done. Lazy sweeps still run on every access.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

func (s *MemoryStore) Close() error { return nil }

// sweepLocked pops due heap items. Items left behind by an overwrite no longer match the
// stored UpdatedAt and are dropped without touching the entry.
func (s *MemoryStore) sweepLocked(now time.Time) []string {
	var expired []string
	for s.queue.Len() > 0 {
		head := s.queue[0]
		if !now.After(head.expiresAt) {
			break
		}
		heap.Pop(&s.queue)

		entry, ok := s.entries[head.id]
		if !ok || !entry.UpdatedAt.Equal(head.updatedAt) {
			continue
		}
		delete(s.entries, head.id)
		expired = append(expired, head.id)
	}
	return expired
}

func (s *MemoryStore) notifyExpired(ids []string) {
	if s.onExpire == nil {
		return
	}
	for _, id := range ids {
		s.onExpire(id)
	}
}

type expiryItem struct {
	id        string
	updatedAt time.Time
	expiresAt time.Time
}

type expiryQueue []expiryItem

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].expiresAt.Before(q[j].expiresAt) }
func (q expiryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *expiryQueue) Push(x any) {
	*q = append(*q, x.(expiryItem))
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
