// Package relay holds the short-lived image handoff between a phone upload and the desktop
// session polling for it.
package relay

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long an entry stays retrievable after its last write.
const DefaultTTL = 15 * time.Minute

var ErrNotFound = errors.New("relay entry not found")

// Entry is a stored upload for one session identifier.
type Entry struct {
	Payload     []byte
	ContentType string
	UpdatedAt   time.Time
}

// Store is the keyed relay used by the upload and retrieval endpoints.
// Get never returns an entry older than the store TTL.
type Store interface {
	Put(ctx context.Context, id string, payload []byte, contentType string) error
	Get(ctx context.Context, id string) (Entry, error)
	Delete(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
	Mode() string
	Close() error
}

type options struct {
	ttl      time.Duration
	now      func() time.Time
	onExpire func(id string)
}

// Option configures a Store built by NewMemoryStore, NewPostgresStore or NewStore.
type Option func(*options)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock injects the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithExpireHook is called once per entry removed by the expiry sweep.
func WithExpireHook(hook func(id string)) Option {
	return func(o *options) {
		o.onExpire = hook
	}
}

func buildOptions(opts []Option) options {
	o := options{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func clonePayload(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
