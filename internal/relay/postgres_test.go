package relay

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("RELAY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RELAY_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	clock := newFakeClock()
	s, err := NewPostgresStore(ctx, dsn, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer s.Close()

	id := "pgtest-" + NewSessionID()
	defer s.Delete(ctx, id)

	if err := s.Put(ctx, id, []byte("a"), "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, id, []byte("b"), "image/png"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Payload) != "b" || got.ContentType != "image/png" {
		t.Fatalf("entry = %q/%q, want %q/%q", got.Payload, got.ContentType, "b", "image/png")
	}

	clock.Advance(16 * time.Minute)
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after TTL error = %v, want ErrNotFound", err)
	}
}
