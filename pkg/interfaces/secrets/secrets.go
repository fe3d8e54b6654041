package secrets

import (
	"context"
	"time"
)

// Record is an encrypted secret entry persisted by a store.
type Record struct {
	Namespace string
	Name      string
	Version   string
	Cipher    []byte
	Nonce     []byte
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines persistence operations for secret records. Implementations
// return sql.ErrNoRows (SQL stores) or secrets.ErrNotFound for missing entries.
type Store interface {
	Put(ctx context.Context, rec Record) error
	GetLatest(ctx context.Context, namespace, name string) (Record, error)
	GetVersion(ctx context.Context, namespace, name, version string) (Record, error)
	Delete(ctx context.Context, namespace, name string) error
	List(ctx context.Context, namespace, name string) ([]Record, error)
}
