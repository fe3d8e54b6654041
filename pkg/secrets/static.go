package secrets

import (
	"context"
	"sync"
	"time"
)

// StaticProvider keeps secrets in memory without encryption. Intended for tests
// and for values injected from the environment.
type StaticProvider struct {
	mu    sync.RWMutex
	store map[Reference]SecretValue
	now   func() time.Time
}

// NewStaticProvider builds an in-memory provider seeded with optional values.
// Seeded entries without a version are served as the latest value.
func NewStaticProvider(seed map[Reference]SecretValue) *StaticProvider {
	p := &StaticProvider{store: make(map[Reference]SecretValue), now: time.Now}
	for ref, val := range seed {
		if val.Version == "" {
			val.Version = ref.Version
		}
		p.store[ref] = val
	}
	return p
}

// NewStaticProviderFromStrings seeds unversioned values under namespace.
func NewStaticProviderFromStrings(namespace string, values map[string]string) *StaticProvider {
	seed := make(map[Reference]SecretValue, len(values))
	for name, value := range values {
		seed[Reference{Namespace: namespace, Name: name}] = SecretValue{Data: []byte(value)}
	}
	return NewStaticProvider(seed)
}

func (p *StaticProvider) Get(_ context.Context, ref Reference) (SecretValue, error) {
	if err := ValidateReference(ref); err != nil {
		return SecretValue{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if ref.Version != "" {
		if val, ok := p.store[ref]; ok {
			return val, nil
		}
		return SecretValue{}, ErrNotFound
	}
	// Without a version, return the lexically greatest one.
	var latest SecretValue
	var found bool
	for k, v := range p.store {
		if k.Namespace == ref.Namespace && k.Name == ref.Name {
			if !found || v.Version > latest.Version {
				latest = v
				found = true
			}
		}
	}
	if !found {
		return SecretValue{}, ErrNotFound
	}
	return latest, nil
}

func (p *StaticProvider) Put(_ context.Context, ref Reference, value []byte) (string, error) {
	if err := ValidateReference(ref); err != nil {
		return "", err
	}
	if len(value) == 0 {
		return "", ErrEmptyValue
	}
	if ref.Version == "" {
		ref.Version = NewVersion(p.now())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store[ref] = SecretValue{
		Data:      append([]byte(nil), value...),
		Version:   ref.Version,
		Retrieved: p.now().UTC(),
	}
	return ref.Version, nil
}

func (p *StaticProvider) Delete(_ context.Context, ref Reference) error {
	if err := ValidateReference(ref); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.store {
		if k.Namespace == ref.Namespace && k.Name == ref.Name && (ref.Version == "" || k.Version == ref.Version) {
			delete(p.store, k)
		}
	}
	return nil
}

func (p *StaticProvider) Describe(ctx context.Context, ref Reference) (map[string]any, error) {
	val, err := p.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return map[string]any{"version": val.Version}, nil
}
