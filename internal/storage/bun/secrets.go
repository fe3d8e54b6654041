package bunrepo

import (
	"context"
	"time"

	iface "github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/secrets"
	"github.com/uptrace/bun"
)

type secretRecord struct {
	bun.BaseModel `bun:"table:secrets"`

	ID        int64          `bun:",pk,autoincrement"`
	Namespace string         `bun:",notnull,unique:secret_identity"`
	Name      string         `bun:",notnull,unique:secret_identity"`
	Version   string         `bun:",notnull,unique:secret_identity"`
	Cipher    []byte         `bun:",notnull"`
	Nonce     []byte         `bun:",notnull"`
	Metadata  map[string]any `bun:",type:jsonb"`
	CreatedAt time.Time      `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:",nullzero,notnull,default:current_timestamp"`
}

// SecretStore persists sealed secret records in a SQL table.
type SecretStore struct {
	db *bun.DB
}

var _ iface.Store = (*SecretStore)(nil)

func NewSecretStore(db *bun.DB) *SecretStore {
	return &SecretStore{db: db}
}

// Migrate creates the secrets table when missing.
func (s *SecretStore) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*secretRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (s *SecretStore) Put(ctx context.Context, rec iface.Record) error {
	model := toSecretRecord(rec)
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (namespace, name, version) DO UPDATE").
		Set("cipher = EXCLUDED.cipher").
		Set("nonce = EXCLUDED.nonce").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	return err
}

func (s *SecretStore) GetLatest(ctx context.Context, namespace, name string) (iface.Record, error) {
	var rec secretRecord
	err := s.db.NewSelect().
		Model(&rec).
		Where("namespace = ? AND name = ?", namespace, name).
		OrderExpr("version DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return iface.Record{}, err
	}
	return fromSecretRecord(rec), nil
}

func (s *SecretStore) GetVersion(ctx context.Context, namespace, name, version string) (iface.Record, error) {
	var rec secretRecord
	err := s.db.NewSelect().
		Model(&rec).
		Where("namespace = ? AND name = ? AND version = ?", namespace, name, version).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return iface.Record{}, err
	}
	return fromSecretRecord(rec), nil
}

// Delete removes every version of the named secret.
func (s *SecretStore) Delete(ctx context.Context, namespace, name string) error {
	_, err := s.db.NewDelete().
		Model((*secretRecord)(nil)).
		Where("namespace = ? AND name = ?", namespace, name).
		Exec(ctx)
	return err
}

// List returns records filtered by namespace and name; empty filters match all.
func (s *SecretStore) List(ctx context.Context, namespace, name string) ([]iface.Record, error) {
	var recs []secretRecord
	query := s.db.NewSelect().Model(&recs).OrderExpr("namespace ASC, name ASC, version ASC")
	if namespace != "" {
		query = query.Where("namespace = ?", namespace)
	}
	if name != "" {
		query = query.Where("name = ?", name)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	results := make([]iface.Record, 0, len(recs))
	for _, r := range recs {
		results = append(results, fromSecretRecord(r))
	}
	return results, nil
}

func toSecretRecord(rec iface.Record) *secretRecord {
	return &secretRecord{
		Namespace: rec.Namespace,
		Name:      rec.Name,
		Version:   rec.Version,
		Cipher:    rec.Cipher,
		Nonce:     rec.Nonce,
		Metadata:  rec.Metadata,
	}
}

func fromSecretRecord(rec secretRecord) iface.Record {
	return iface.Record{
		Namespace: rec.Namespace,
		Name:      rec.Name,
		Version:   rec.Version,
		Cipher:    rec.Cipher,
		Nonce:     rec.Nonce,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
