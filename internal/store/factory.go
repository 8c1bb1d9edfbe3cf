package store

import (
	"context"
	"fmt"
)

// Open resolves a Store implementation from a dsn. An empty dsn selects the
// memory fallback used for tests and for storage_unavailable degraded boots.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return NewMemory(), nil
	}
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return s, nil
}
