package vectorstore

import "fmt"

// Open resolves a Store implementation from a dsn. An empty dsn selects the
// memory fallback; "memory://" is accepted explicitly for tests.
func Open(dsn string) (Store, error) {
	switch {
	case dsn == "" || dsn == "memory://":
		return NewMemory(), nil
	default:
		store, err := NewQdrant(dsn)
		if err != nil {
			return nil, fmt.Errorf("open qdrant vector store: %w", err)
		}
		return store, nil
	}
}
