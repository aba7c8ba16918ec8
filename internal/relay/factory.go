package relay

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed relay when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string, opts ...Option) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(opts...), nil
	}
	return NewPostgresStore(ctx, databaseURL, opts...)
}
