package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/identity"
)

// Names locates the three long-lived session secrets.
type Names struct {
	Namespace  string
	HMAC       string
	Encryption string
	API        string
}

// Validate ensures every name is set.
func (n Names) Validate() error {
	if strings.TrimSpace(n.HMAC) == "" || strings.TrimSpace(n.Encryption) == "" || strings.TrimSpace(n.API) == "" {
		return ErrMissingNames
	}
	return nil
}

// MaterialSource resolves the session secrets through a Resolver.
type MaterialSource struct {
	Resolver Resolver
	Names    Names
}

// FetchMaterial returns the HMAC, encryption and API secrets. The global key is
// chosen later from directory data and is left empty here.
func (s MaterialSource) FetchMaterial(ctx context.Context) (identity.SecretMaterial, error) {
	if s.Resolver == nil {
		return identity.SecretMaterial{}, ErrUnsupported
	}
	if err := s.Names.Validate(); err != nil {
		return identity.SecretMaterial{}, err
	}
	hmacRef := Reference{Namespace: s.Names.Namespace, Name: s.Names.HMAC}
	encRef := Reference{Namespace: s.Names.Namespace, Name: s.Names.Encryption}
	apiRef := Reference{Namespace: s.Names.Namespace, Name: s.Names.API}

	values, err := s.Resolver.Resolve(ctx, hmacRef, encRef, apiRef)
	if err != nil {
		return identity.SecretMaterial{}, err
	}
	pick := func(ref Reference) (string, error) {
		val, ok := values[ref]
		if !ok {
			return "", fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		if len(val.Data) == 0 {
			return "", fmt.Errorf("%s: %w", ref, ErrEmptyValue)
		}
		return string(val.Data), nil
	}

	var material identity.SecretMaterial
	if material.HMACKey, err = pick(hmacRef); err != nil {
		return identity.SecretMaterial{}, err
	}
	if material.EncryptionKey, err = pick(encRef); err != nil {
		return identity.SecretMaterial{}, err
	}
	if material.APIKey, err = pick(apiRef); err != nil {
		return identity.SecretMaterial{}, err
	}
	return material, nil
}
