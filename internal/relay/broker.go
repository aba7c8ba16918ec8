package relay

import "sync"

// Broker wakes watchers waiting for an upload on a given session identifier.
type Broker struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]chan struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[uint64]chan struct{})}
}

// Subscribe returns a channel signalled on the next Publish for id, and a cancel func that
// must be called once the watcher is done.
func (b *Broker) Subscribe(id string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	b.nextID++
	key := b.nextID
	if b.subs[id] == nil {
		b.subs[id] = make(map[uint64]chan struct{})
	}
	b.subs[id][key] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[id]; ok {
				delete(set, key)
				if len(set) == 0 {
					delete(b.subs, id)
				}
			}
		})
	}
	return ch, cancel
}

// Publish signals every current subscriber of id without blocking.
func (b *Broker) Publish(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[id] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watchers returns the number of subscribers across all identifiers.
func (b *Broker) Watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}
