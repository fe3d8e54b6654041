// Package credcache keeps the bootstrap access token on local disk so a
// restarted client can skip the browser login while the token is still valid.
//
// The cache is an optimization. Every I/O or decode failure is logged at debug
// level and treated as a miss; nothing here returns an error.
package credcache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
)

// FileName is the fixed record name inside the cache directory.
const FileName = "runtime-aot-credentials.json"

// Credential is the persisted record.
type Credential struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Email       *string   `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
	CachedAt    time.Time `json:"cached_at"`
}

// EmailOrEmpty dereferences Email.
func (c Credential) EmailOrEmpty() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

// ValidAt reports whether the record is well formed and now is strictly before its expiry.
func (c Credential) ValidAt(now time.Time) bool {
	if strings.TrimSpace(c.AccessToken) == "" || strings.TrimSpace(c.UserID) == "" {
		return false
	}
	return now.Before(c.ExpiresAt)
}

// Cache reads and writes the single credential record.
type Cache struct {
	dir    string
	now    func() time.Time
	logger logger.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithDir overrides the cache directory (os.TempDir by default).
func WithDir(dir string) Option {
	return func(c *Cache) {
		if strings.TrimSpace(dir) != "" {
			c.dir = dir
		}
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a cache rooted in the temp directory.
func New(opts ...Option) *Cache {
	c := &Cache{
		dir:    os.TempDir(),
		now:    time.Now,
		logger: &logger.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Path returns the record location.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, FileName)
}

// Save writes a record that expires validFor from now. An empty email is stored as null.
func (c *Cache) Save(accessToken, userID, email string, validFor time.Duration) {
	now := c.now().UTC()
	rec := Credential{
		AccessToken: accessToken,
		UserID:      userID,
		ExpiresAt:   now.Add(validFor),
		CachedAt:    now,
	}
	if strings.TrimSpace(email) != "" {
		rec.Email = &email
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		c.logger.Debug("credential cache encode failed", logger.Field{Key: "error", Value: err})
		return
	}
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		c.logger.Debug("credential cache mkdir failed", logger.Field{Key: "error", Value: err})
		return
	}
	if err := os.WriteFile(c.Path(), payload, 0o600); err != nil {
		c.logger.Debug("credential cache write failed", logger.Field{Key: "error", Value: err})
		return
	}
	c.logger.Debug("credential cached",
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "expires_at", Value: rec.ExpiresAt},
	)
}

// Load returns the record when it is well formed and unexpired. An expired
// record is deleted before reporting a miss.
func (c *Cache) Load() (Credential, bool) {
	raw, err := os.ReadFile(c.Path())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug("credential cache read failed", logger.Field{Key: "error", Value: err})
		}
		return Credential{}, false
	}
	var rec Credential
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Debug("credential cache decode failed", logger.Field{Key: "error", Value: err})
		return Credential{}, false
	}
	if strings.TrimSpace(rec.AccessToken) == "" || strings.TrimSpace(rec.UserID) == "" {
		return Credential{}, false
	}
	if !rec.ValidAt(c.now()) {
		c.logger.Debug("credential cache expired", logger.Field{Key: "expires_at", Value: rec.ExpiresAt})
		c.Clear()
		return Credential{}, false
	}
	return rec, true
}

// Clear removes the record; a missing record is not an error.
func (c *Cache) Clear() {
	if err := os.Remove(c.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("credential cache delete failed", logger.Field{Key: "error", Value: err})
	}
}
