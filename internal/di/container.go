package di

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	bunrepo "github.com/open-runtime/runtime-aot-client-examples/internal/storage/bun"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/config"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/credcache"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interceptor"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/secrets"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/session"
)

// Options configure the DI container.
type Options struct {
	Config    config.Config
	Logger    logger.Logger
	Login     session.LoginFlow
	Directory session.Directory
	// Provider overrides the secret backend selected in Config.
	Provider   secrets.Provider
	Registerer prometheus.Registerer
	// Client supplies the network-derived identity fields; OS and
	// ServerVersion fall back to Config.Runtime.
	Client session.ClientInfo
	ISR    json.RawMessage
}

// Container wires the credential cache, secret backend, bootstrap and
// interceptor for one client process.
type Container struct {
	Config   config.Config
	Logger   logger.Logger
	Cache    *credcache.Cache
	Provider secrets.Provider
	Secrets  secrets.MaterialSource
	Metrics  *interceptor.Metrics

	login     session.LoginFlow
	directory session.Directory
	client    session.ClientInfo
	isr       json.RawMessage
	closeFn   func() error
}

func isZeroConfig(cfg config.Config) bool {
	return reflect.ValueOf(cfg).IsZero()
}

// New constructs the container using the supplied options.
func New(ctx context.Context, opts Options) (*Container, error) {
	cfg := opts.Config
	if isZeroConfig(cfg) {
		cfg = config.Defaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lgr := logger.OrNop(opts.Logger)

	cacheOpts := []credcache.Option{credcache.WithLogger(lgr)}
	if cfg.Cache.Dir != "" {
		cacheOpts = append(cacheOpts, credcache.WithDir(cfg.Cache.Dir))
	}

	provider := opts.Provider
	closeFn := func() error { return nil }
	if provider == nil {
		var err error
		provider, closeFn, err = OpenProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	metrics, err := interceptor.NewMetrics(opts.Registerer)
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	client := opts.Client
	if client.OS == "" {
		client.OS = cfg.Runtime.OS
	}
	if client.ServerVersion == "" {
		client.ServerVersion = cfg.Runtime.ServerVersion
	}

	return &Container{
		Config:   cfg,
		Logger:   lgr,
		Cache:    credcache.New(cacheOpts...),
		Provider: provider,
		Secrets: secrets.MaterialSource{
			Resolver: secrets.NewCachingResolver(secrets.SimpleResolver{Provider: provider}, cfg.Secrets.CacheTTL),
			Names: secrets.Names{
				Namespace:  cfg.Bootstrap.SecretNamespace,
				HMAC:       cfg.Bootstrap.HMACSecretName,
				Encryption: cfg.Bootstrap.EncryptionSecretName,
				API:        cfg.Bootstrap.APISecretName,
			},
		},
		Metrics:   metrics,
		login:     opts.Login,
		directory: opts.Directory,
		client:    client,
		isr:       opts.ISR,
		closeFn:   closeFn,
	}, nil
}

// Connect bootstraps the session and returns an interceptor bound to it.
func (c *Container) Connect(ctx context.Context) (*session.Session, *interceptor.Interceptor, error) {
	if c.directory == nil {
		return nil, nil, errors.New("di: directory is required to connect")
	}
	sess, err := session.Bootstrap(ctx, session.Dependencies{
		Cache:     c.Cache,
		Secrets:   c.Secrets,
		Login:     c.login,
		Directory: c.directory,
		Logger:    c.Logger,
	}, session.Options{
		Client:           c.client,
		CacheTTL:         c.Config.Cache.TTL,
		OrgLookupTimeout: c.Config.Bootstrap.OrgLookupTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	cfg := sess.InterceptorConfig(interceptor.Config{
		RuntimeNumber: c.Config.Runtime.Number,
		RuntimeTime:   c.Config.Runtime.Time,
		ISR:           c.isr,
		Logger:        c.Logger,
		Metrics:       c.Metrics,
	})
	return sess, interceptor.New(cfg), nil
}

// Close releases the secret backend.
func (c *Container) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// OpenProvider builds the secret provider selected by cfg. The returned
// closer releases any database handle.
func OpenProvider(ctx context.Context, cfg config.Config) (secrets.Provider, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Secrets.Backend {
	case config.BackendStatic:
		return secrets.NewStaticProviderFromStrings(cfg.Bootstrap.SecretNamespace, cfg.Secrets.Static), noop, nil
	case config.BackendAWS:
		return secrets.NewAWSProvider(secrets.AWSConfig{
			Region:  cfg.Secrets.AWS.Region,
			Profile: cfg.Secrets.AWS.Profile,
		}), noop, nil
	case config.BackendSQLite:
		key, err := hex.DecodeString(os.Getenv(cfg.Secrets.SQLite.KeyEnv))
		if err != nil {
			return nil, nil, fmt.Errorf("di: vault key in %s: %w", cfg.Secrets.SQLite.KeyEnv, err)
		}
		sqldb, err := sql.Open(sqliteshim.DriverName(), cfg.Secrets.SQLite.DSN)
		if err != nil {
			return nil, nil, err
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		store := bunrepo.NewSecretStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		provider, err := secrets.NewEncryptedStoreProvider(store, key)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return provider, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("di: unsupported secrets backend %q", cfg.Secrets.Backend)
	}
}
