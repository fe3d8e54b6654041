package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/identity"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
)

// Bootstrap runs cache lookup, secret fetch, login, user key lookup and the
// organization lookup in that order. Only the organization lookup is
// time-boxed and allowed to fail; an organization without an ID counts as none.
func Bootstrap(ctx context.Context, deps Dependencies, opts Options) (*Session, error) {
	if deps.Secrets == nil || deps.Directory == nil {
		return nil, fmt.Errorf("%w: secrets and directory are required", ErrMissingDependency)
	}
	opts = opts.withDefaults()
	log := logger.OrNop(deps.Logger)

	var (
		accessToken, userID, email string
		fromCache                  bool
	)
	if deps.Cache != nil {
		if cred, ok := deps.Cache.Load(); ok {
			accessToken, userID, email = cred.AccessToken, cred.UserID, cred.EmailOrEmpty()
			fromCache = true
			log.Info("session: using cached credential", logger.Field{Key: "user_id", Value: userID})
		}
	}

	material, err := deps.Secrets.FetchMaterial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecretFetch, err)
	}

	if !fromCache {
		if deps.Login == nil {
			return nil, fmt.Errorf("%w: no cached credential and no login flow", ErrMissingDependency)
		}
		res, err := deps.Login.Login(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLogin, err)
		}
		if strings.TrimSpace(res.AccessToken) == "" || strings.TrimSpace(res.UserID) == "" {
			return nil, fmt.Errorf("%w: login returned no access token or user id", ErrLogin)
		}
		accessToken, userID, email = res.AccessToken, res.UserID, res.Email
		if deps.Cache != nil {
			ttl := opts.CacheTTL
			if res.ExpiresIn > 0 {
				ttl = res.ExpiresIn
			}
			deps.Cache.Save(accessToken, userID, email, ttl)
		}
		log.Info("session: signed in", logger.Field{Key: "user_id", Value: userID})
	}

	record, err := deps.Directory.UserRecord(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s: %w", ErrDirectory, userID, err)
	}
	keys, err := ExtractUserKeys(record.Keys)
	if err != nil {
		return nil, err
	}
	material.GlobalKey, err = SelectGlobalKey(keys, opts.SelectKey, opts.Now())
	if err != nil {
		return nil, err
	}
	if email == "" {
		email = record.Email
	}

	sess := &Session{
		Identity: identity.ClientIdentity{
			UserID:        userID,
			Email:         email,
			OS:            opts.Client.OS,
			ClientIP:      opts.Client.ClientIP,
			CountryCode:   opts.Client.CountryCode,
			ServerVersion: opts.Client.ServerVersion,
		},
		Secrets:     material,
		AccessToken: accessToken,
		FromCache:   fromCache,
	}

	org, err := lookupOrganization(ctx, deps.Directory, userID, opts)
	if err != nil {
		log.Warn("session: organization lookup skipped",
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	} else if strings.TrimSpace(org.ID) != "" {
		sess.Organization = &org
	}
	return sess, nil
}

type orgResult struct {
	org Organization
	err error
}

// lookupOrganization waits at most opts.OrgLookupTimeout, even when the
// directory ignores context cancellation.
func lookupOrganization(ctx context.Context, dir Directory, userID string, opts Options) (Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.OrgLookupTimeout)
	defer cancel()

	done := make(chan orgResult, 1)
	go func() {
		org, err := dir.Organization(ctx, userID)
		done <- orgResult{org: org, err: err}
	}()

	select {
	case res := <-done:
		return res.org, res.err
	case <-ctx.Done():
		return Organization{}, ctx.Err()
	}
}
