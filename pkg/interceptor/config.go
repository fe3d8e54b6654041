package interceptor

import (
	"encoding/json"
	"time"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/derive"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/identity"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/payload"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/signing"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/token"
)

// Config is the session state and the collaborators an Interceptor needs.
// It is copied at construction and never mutated afterwards.
type Config struct {
	Identity    identity.ClientIdentity
	Secrets     identity.SecretMaterial
	AccessToken string

	// RuntimeNumber and RuntimeTime are opaque identifiers forwarded verbatim.
	RuntimeNumber string
	RuntimeTime   string

	// ISR is an opaque JSON blob sent encrypted with every call.
	ISR json.RawMessage

	Deriver   derive.Deriver
	Signer    signing.Signer
	Encryptor payload.Encryptor
	Minter    token.Minter
	Entropy   Entropy
	Now       func() time.Time
	Logger    logger.Logger
	Metrics   *Metrics
}

// keyInputs maps the long-lived secrets onto the three derivation purposes.
func (c Config) keyInputs() derive.Inputs {
	return derive.Inputs{
		SigningSecret:    c.Secrets.HMACKey,
		EncryptionSecret: c.Secrets.EncryptionKey,
		TokenSecret:      c.Secrets.HMACKey,
		GlobalKey:        c.Secrets.GlobalKey,
	}
}

func (c Config) header() token.Header {
	return token.Header{OS: c.Identity.OS, ServerVersion: c.Identity.ServerVersion}
}

func (c Config) isrPayload() string {
	if len(c.ISR) == 0 {
		return "{}"
	}
	return string(c.ISR)
}

// withDefaults fills unset collaborators with the production implementations.
func (c Config) withDefaults() Config {
	if c.Deriver == nil {
		c.Deriver = derive.SHA256Deriver{}
	}
	if c.Signer == nil {
		c.Signer = signing.HMACSigner{}
	}
	if c.Logger == nil {
		c.Logger = &logger.Nop{}
	}
	if c.Encryptor == nil {
		c.Encryptor = payload.New(payload.WithLogger(c.Logger))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Minter == nil {
		c.Minter = token.NewJWTMinter(c.Now)
	}
	if c.Entropy == nil {
		c.Entropy = RandomEntropy{}
	}
	if len(c.ISR) > 0 {
		c.ISR = append(json.RawMessage(nil), c.ISR...)
	}
	return c
}
