// Package session runs the process bootstrap that produces the immutable
// identity and secret material used by the outbound call interceptor.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/credcache"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/identity"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interceptor"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
)

var (
	ErrSecretFetch       = errors.New("session: secret fetch failed")
	ErrLogin             = errors.New("session: login failed")
	ErrDirectory         = errors.New("session: directory lookup failed")
	ErrUserKeyCount      = errors.New("session: unexpected number of user keys")
	ErrUserKeyFormat     = errors.New("session: unsupported user key format")
	ErrMissingDependency = errors.New("session: missing dependency")
)

// LoginResult is what an external login flow hands back.
type LoginResult struct {
	AccessToken string
	UserID      string
	Email       string
	// ExpiresIn overrides the configured cache lifetime when positive.
	ExpiresIn time.Duration
}

// LoginFlow runs the interactive sign-in.
type LoginFlow interface {
	Login(ctx context.Context) (LoginResult, error)
}

// SecretSource supplies the HMAC, encryption and API secrets.
type SecretSource interface {
	FetchMaterial(ctx context.Context) (identity.SecretMaterial, error)
}

// UserRecord is the directory entry for a user. Keys holds the rotating
// global key set, either as a list or as a map of index to key.
type UserRecord struct {
	UserID string
	Email  string
	Keys   any
}

// Organization is the optional organization membership of a user.
type Organization struct {
	ID                  string
	Name                string
	ActiveSubscriptions []string
}

// Directory looks up users and their organizations.
type Directory interface {
	UserRecord(ctx context.Context, userID string) (UserRecord, error)
	Organization(ctx context.Context, userID string) (Organization, error)
}

// CredentialStore is the subset of credcache.Cache used during bootstrap.
type CredentialStore interface {
	Load() (credcache.Credential, bool)
	Save(accessToken, userID, email string, validFor time.Duration)
}

var _ CredentialStore = (*credcache.Cache)(nil)

// ClientInfo carries the platform fields reported with every call.
type ClientInfo struct {
	OS            string
	ClientIP      string
	CountryCode   string
	ServerVersion string
}

// Session is the result of a successful bootstrap.
type Session struct {
	Identity     identity.ClientIdentity
	Secrets      identity.SecretMaterial
	AccessToken  string
	Organization *Organization
	// FromCache reports whether the login step was skipped.
	FromCache bool
}

// InterceptorConfig copies the session state into base, keeping whatever
// collaborators and runtime identifiers base already carries.
func (s *Session) InterceptorConfig(base interceptor.Config) interceptor.Config {
	base.Identity = s.Identity
	base.Secrets = s.Secrets
	base.AccessToken = s.AccessToken
	return base
}

// Dependencies are the external collaborators of Bootstrap.
type Dependencies struct {
	Cache     CredentialStore
	Secrets   SecretSource
	Login     LoginFlow
	Directory Directory
	Logger    logger.Logger
}

// Options tune Bootstrap.
type Options struct {
	Client           ClientInfo
	CacheTTL         time.Duration
	OrgLookupTimeout time.Duration
	SelectKey        KeySelector
	Now              func() time.Time
}

const (
	DefaultCacheTTL         = 24 * time.Hour
	DefaultOrgLookupTimeout = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.OrgLookupTimeout <= 0 {
		o.OrgLookupTimeout = DefaultOrgLookupTimeout
	}
	if o.SelectKey == nil {
		o.SelectKey = DayOfYear
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
