package secrets

import (
	"context"
	"time"
)

// Reference identifies a secret in a backend.
type Reference struct {
	Namespace string
	Name      string
	Version   string
}

// String renders namespace/name[@version] for logs and cache keys.
func (r Reference) String() string {
	out := r.Namespace + "/" + r.Name
	if r.Version != "" {
		out += "@" + r.Version
	}
	return out
}

// VersionLayout formats generated versions. It is fixed width so that
// lexical order matches time order.
const VersionLayout = "20060102T150405.000000000Z"

// NewVersion returns the version string for a value written at t.
func NewVersion(t time.Time) string {
	return t.UTC().Format(VersionLayout)
}

// SecretValue carries the resolved secret payload.
type SecretValue struct {
	Data      []byte
	Version   string
	Retrieved time.Time
	Metadata  map[string]any
}

// Provider resolves and manages secret values.
type Provider interface {
	Get(ctx context.Context, ref Reference) (SecretValue, error)
	Put(ctx context.Context, ref Reference, value []byte) (string, error)
	Delete(ctx context.Context, ref Reference) error
	Describe(ctx context.Context, ref Reference) (map[string]any, error) // non-sensitive metadata only
}

// Resolver batches resolution of references and returns keyed results.
type Resolver interface {
	Resolve(ctx context.Context, refs ...Reference) (map[Reference]SecretValue, error)
}
