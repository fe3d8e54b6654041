package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	"gopkg.in/yaml.v3"
)

// Secret backends understood by the bootstrap wiring.
const (
	BackendStatic = "static"
	BackendSQLite = "sqlite"
	BackendAWS    = "aws"
)

// Config captures module-level configuration knobs. The session bootstrap and
// the authctl command pull from these nested structs.
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache" json:"cache" yaml:"cache"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" json:"bootstrap" yaml:"bootstrap"`
	Secrets   SecretsConfig   `mapstructure:"secrets" json:"secrets" yaml:"secrets"`
	Runtime   RuntimeConfig   `mapstructure:"runtime" json:"runtime" yaml:"runtime"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging" yaml:"logging"`
}

// CacheConfig locates the credential cache file and how long a login stays cached.
type CacheConfig struct {
	Dir string        `mapstructure:"dir" json:"dir" yaml:"dir"`
	TTL time.Duration `mapstructure:"ttl" json:"ttl" yaml:"ttl"`
}

// BootstrapConfig controls the session startup sequence.
type BootstrapConfig struct {
	OrgLookupTimeout     time.Duration `mapstructure:"org_lookup_timeout" json:"org_lookup_timeout" yaml:"org_lookup_timeout"`
	SecretNamespace      string        `mapstructure:"secret_namespace" json:"secret_namespace" yaml:"secret_namespace"`
	HMACSecretName       string        `mapstructure:"hmac_secret_name" json:"hmac_secret_name" yaml:"hmac_secret_name"`
	EncryptionSecretName string        `mapstructure:"encryption_secret_name" json:"encryption_secret_name" yaml:"encryption_secret_name"`
	APISecretName        string        `mapstructure:"api_secret_name" json:"api_secret_name" yaml:"api_secret_name"`
}

// SecretsConfig selects where session secrets are read from.
type SecretsConfig struct {
	Backend  string            `mapstructure:"backend" json:"backend" yaml:"backend"`
	CacheTTL time.Duration     `mapstructure:"cache_ttl" json:"cache_ttl" yaml:"cache_ttl"`
	Static   map[string]string `mapstructure:"static" json:"static" yaml:"static"`
	SQLite   SQLiteConfig      `mapstructure:"sqlite" json:"sqlite" yaml:"sqlite"`
	AWS      AWSConfig         `mapstructure:"aws" json:"aws" yaml:"aws"`
}

// SQLiteConfig points at the local encrypted vault. The vault key is read
// from the environment variable named by KeyEnv, hex encoded.
type SQLiteConfig struct {
	DSN    string `mapstructure:"dsn" json:"dsn" yaml:"dsn"`
	KeyEnv string `mapstructure:"key_env" json:"key_env" yaml:"key_env"`
}

// AWSConfig configures the Secrets Manager client.
type AWSConfig struct {
	Region  string `mapstructure:"region" json:"region" yaml:"region"`
	Profile string `mapstructure:"profile" json:"profile" yaml:"profile"`
}

// RuntimeConfig carries the runtime identifiers attached to every call.
type RuntimeConfig struct {
	Number        string `mapstructure:"number" json:"number" yaml:"number"`
	Time          string `mapstructure:"time" json:"time" yaml:"time"`
	OS            string `mapstructure:"os" json:"os" yaml:"os"`
	ServerVersion string `mapstructure:"server_version" json:"server_version" yaml:"server_version"`
}

// LoggingConfig sets the console log level.
type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level" yaml:"level"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Bootstrap: BootstrapConfig{
			OrgLookupTimeout:     5 * time.Second,
			SecretNamespace:      "runtime",
			HMACSecretName:       "hmac-key",
			EncryptionSecretName: "encryption-key",
			APISecretName:        "api-key",
		},
		Secrets: SecretsConfig{
			Backend:  BackendStatic,
			CacheTTL: 5 * time.Minute,
			SQLite: SQLiteConfig{
				DSN:    "file:runtime-secrets.db",
				KeyEnv: "RUNTIME_AOT_VAULT_KEY",
			},
			AWS: AWSConfig{Region: "us-east-1"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}
	if c.Bootstrap.OrgLookupTimeout <= 0 {
		return errors.New("bootstrap.org_lookup_timeout must be > 0")
	}
	if c.Bootstrap.HMACSecretName == "" || c.Bootstrap.EncryptionSecretName == "" || c.Bootstrap.APISecretName == "" {
		return errors.New("bootstrap secret names are required")
	}
	if c.Secrets.CacheTTL < 0 {
		return fmt.Errorf("secrets.cache_ttl must be >= 0")
	}
	switch c.Secrets.Backend {
	case BackendStatic:
	case BackendSQLite:
		if c.Secrets.SQLite.DSN == "" {
			return errors.New("secrets.sqlite.dsn is required")
		}
	case BackendAWS:
		if c.Secrets.AWS.Region == "" {
			return errors.New("secrets.aws.region is required")
		}
	default:
		return fmt.Errorf("secrets.backend %q is not supported", c.Secrets.Backend)
	}
	return nil
}

// Load decodes arbitrary input (struct, map, cfg struct) and runs it through
// cfgx so callers can attach build options. Maps are decoded first so duration
// strings such as "5s" are accepted.
func Load(input any, opts ...LoadOption) (Config, error) {
	settings := loadOptions{}
	for _, opt := range opts {
		opt(&settings)
	}

	var decoded Config
	if err := decodeFallback(input, &decoded); err != nil {
		return Config{}, err
	}

	cfg, err := cfgx.Build(decoded, settings.buildOpts...)
	if err != nil {
		return Config{}, err
	}
	if isZero(cfg) {
		cfg = decoded
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFile reads a YAML document from path and loads it.
func LoadFile(path string, opts ...LoadOption) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return Load(doc, opts...)
}

// LoadOption lets callers amend cfgx build options.
type LoadOption func(*loadOptions)

type loadOptions struct {
	buildOpts []cfgx.Option[Config]
}

// WithBuildOptions forwards cfgx options (duration hooks, preprocessors, etc.).
func WithBuildOptions(opts ...cfgx.Option[Config]) LoadOption {
	return func(lo *loadOptions) {
		lo.buildOpts = append(lo.buildOpts, opts...)
	}
}

func (c Config) withDefaults() Config {
	defaults := Defaults()

	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaults.Cache.TTL
	}
	if c.Bootstrap.OrgLookupTimeout == 0 {
		c.Bootstrap.OrgLookupTimeout = defaults.Bootstrap.OrgLookupTimeout
	}
	if c.Bootstrap.SecretNamespace == "" {
		c.Bootstrap.SecretNamespace = defaults.Bootstrap.SecretNamespace
	}
	if c.Bootstrap.HMACSecretName == "" {
		c.Bootstrap.HMACSecretName = defaults.Bootstrap.HMACSecretName
	}
	if c.Bootstrap.EncryptionSecretName == "" {
		c.Bootstrap.EncryptionSecretName = defaults.Bootstrap.EncryptionSecretName
	}
	if c.Bootstrap.APISecretName == "" {
		c.Bootstrap.APISecretName = defaults.Bootstrap.APISecretName
	}
	c.Secrets.Backend = strings.ToLower(strings.TrimSpace(c.Secrets.Backend))
	if c.Secrets.Backend == "" {
		c.Secrets.Backend = defaults.Secrets.Backend
	}
	if c.Secrets.CacheTTL == 0 {
		c.Secrets.CacheTTL = defaults.Secrets.CacheTTL
	}
	if c.Secrets.SQLite.DSN == "" {
		c.Secrets.SQLite.DSN = defaults.Secrets.SQLite.DSN
	}
	if c.Secrets.SQLite.KeyEnv == "" {
		c.Secrets.SQLite.KeyEnv = defaults.Secrets.SQLite.KeyEnv
	}
	if c.Secrets.AWS.Region == "" {
		c.Secrets.AWS.Region = defaults.Secrets.AWS.Region
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	return c
}

func isZero(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func decodeFallback(input any, cfg *Config) error {
	switch v := input.(type) {
	case nil:
		return nil
	case Config:
		*cfg = v
		return nil
	case *Config:
		if v != nil {
			*cfg = *v
		}
		return nil
	case map[string]any:
		return decodeMap(v, cfg)
	default:
		return fmt.Errorf("unsupported config input type: %T", input)
	}
}

// decodeMap round-trips through YAML, which parses "5s" style durations.
func decodeMap(input map[string]any, cfg *Config) error {
	if input == nil {
		return nil
	}
	payload, err := yaml.Marshal(input)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(payload, cfg)
}
