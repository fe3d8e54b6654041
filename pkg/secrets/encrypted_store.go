package secrets

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	iface "github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/secrets"
	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptedStoreProvider persists secrets sealed with XChaCha20-Poly1305 in a Store.
// It backs the local vault used when no remote secret manager is configured.
type EncryptedStoreProvider struct {
	store iface.Store
	aead  cipherSuite
	now   func() time.Time
}

type cipherSuite interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// NewEncryptedStoreProvider builds a provider using the given store and key.
func NewEncryptedStoreProvider(store iface.Store, key []byte) (*EncryptedStoreProvider, error) {
	if store == nil {
		return nil, fmt.Errorf("encrypted provider: store required")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encrypted provider: key must be %d bytes: %w", chacha20poly1305.KeySize, ErrInvalidKey)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &EncryptedStoreProvider{
		store: store,
		aead:  aead,
		now:   time.Now,
	}, nil
}

func (p *EncryptedStoreProvider) Get(ctx context.Context, ref Reference) (SecretValue, error) {
	if err := ValidateReference(ref); err != nil {
		return SecretValue{}, err
	}
	var rec iface.Record
	var err error
	if ref.Version != "" {
		rec, err = p.store.GetVersion(ctx, ref.Namespace, ref.Name, ref.Version)
	} else {
		rec, err = p.store.GetLatest(ctx, ref.Namespace, ref.Name)
	}
	if err != nil {
		return SecretValue{}, translateStoreError(err)
	}
	plain, err := p.aead.Open(nil, rec.Nonce, rec.Cipher, additionalData(rec.Namespace, rec.Name))
	if err != nil {
		return SecretValue{}, fmt.Errorf("decrypt: %w", err)
	}
	return SecretValue{
		Data:      plain,
		Version:   rec.Version,
		Retrieved: p.now().UTC(),
		Metadata:  rec.Metadata,
	}, nil
}

func (p *EncryptedStoreProvider) Put(ctx context.Context, ref Reference, value []byte) (string, error) {
	if err := ValidateReference(ref); err != nil {
		return "", err
	}
	if len(value) == 0 {
		return "", ErrEmptyValue
	}
	now := p.now().UTC()
	if ref.Version == "" {
		ref.Version = NewVersion(now)
	}
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	rec := iface.Record{
		Namespace: ref.Namespace,
		Name:      ref.Name,
		Version:   ref.Version,
		Cipher:    p.aead.Seal(nil, nonce, value, additionalData(ref.Namespace, ref.Name)),
		Nonce:     nonce,
		Metadata:  map[string]any{"created_at": now},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.Put(ctx, rec); err != nil {
		return "", translateStoreError(err)
	}
	return ref.Version, nil
}

func (p *EncryptedStoreProvider) Delete(ctx context.Context, ref Reference) error {
	if err := ValidateReference(ref); err != nil {
		return err
	}
	return translateStoreError(p.store.Delete(ctx, ref.Namespace, ref.Name))
}

func (p *EncryptedStoreProvider) Describe(ctx context.Context, ref Reference) (map[string]any, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	rec, err := p.store.GetLatest(ctx, ref.Namespace, ref.Name)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return map[string]any{
		"version": rec.Version,
		"meta":    rec.Metadata,
	}, nil
}

// additionalData binds ciphertext to its location so records cannot be swapped.
func additionalData(namespace, name string) []byte {
	return []byte(namespace + "/" + name)
}

func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	default:
		return err
	}
}
