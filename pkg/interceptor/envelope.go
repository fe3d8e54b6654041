package interceptor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/signing"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/token"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
)

// Call kinds.
const (
	KindUnary  = "unary"
	KindStream = "stream"
)

// Envelope is the authentication metadata of one call.
type Envelope struct {
	Kind      string
	Method    string
	Timestamp int64
	Nonce     string
	// CallID is the request id for unary calls and the stream id for streams.
	CallID    string
	Signature string
	Bearer    string

	EncryptedAccessToken string
	EncryptedUserEmail   string
	EncryptedUserID      string
	EncryptedISR         string

	RuntimeNumber string
	RuntimeTime   string

	OS            string
	ClientIP      string
	CountryCode   string
	ServerVersion string

	// FallbackFields names the fields sent with the non-confidential encoding.
	FallbackFields []string
}

// Metadata renders the envelope as outbound gRPC metadata.
func (e Envelope) Metadata() metadata.MD {
	md := metadata.MD{}
	md.Set(KeyAuthorization, bearerPrefix+e.Bearer)
	md.Set(KeyTimestamp, strconv.FormatInt(e.Timestamp, 10))
	md.Set(KeyNonce, e.Nonce)
	md.Set(KeyEncryptedAccessToken, e.EncryptedAccessToken)
	md.Set(KeyEncryptedUserEmail, e.EncryptedUserEmail)
	md.Set(KeyEncryptedUserID, e.EncryptedUserID)
	md.Set(KeyEncryptedISR, e.EncryptedISR)
	md.Set(KeyRuntimeNumber, e.RuntimeNumber)
	md.Set(KeyRuntimeTime, e.RuntimeTime)
	md.Set(KeyOS, e.OS)
	md.Set(KeyOSServerVersion, e.ServerVersion)

	if e.Kind == KindStream {
		md.Set(KeyStreamID, e.CallID)
		md.Set(KeyStreamSignature, e.Signature)
		return md
	}
	md.Set(KeyRequestID, e.CallID)
	md.Set(KeyRequestSignature, e.Signature)
	md.Set(KeyClientIPAddress, e.ClientIP)
	md.Set(KeyCountryIPCode, e.CountryCode)
	return md
}

// Merge returns a copy of existing with the envelope keys set. Keys outside the
// envelope are left untouched.
func (e Envelope) Merge(existing metadata.MD) metadata.MD {
	out := existing.Copy()
	if out == nil {
		out = metadata.MD{}
	}
	for k, v := range e.Metadata() {
		out[k] = v
	}
	return out
}

// BuildUnaryEnvelope builds the envelope for a single request. It fails with
// ErrAuthenticationRequired before deriving any key when the user id or access
// token is missing. A request id already present in existing is reused.
func BuildUnaryEnvelope(cfg Config, method string, req any, existing metadata.MD) (Envelope, error) {
	cfg = cfg.withDefaults()
	if !cfg.Identity.HasUser() {
		return Envelope{}, authRequired("missing user id")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return Envelope{}, authRequired("missing access token")
	}
	body, err := encodeBody(req)
	if err != nil {
		return Envelope{}, err
	}
	return build(cfg, KindUnary, method, firstValue(existing, KeyRequestID), func(string) []byte { return body })
}

// BuildStreamEnvelope builds the envelope sent when a stream opens. Only the
// access token is required. The signed body is the tag "stream:<id>".
func BuildStreamEnvelope(cfg Config, method string, existing metadata.MD) (Envelope, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return Envelope{}, authRequired("missing access token")
	}
	return build(cfg, KindStream, method, firstValue(existing, KeyStreamID), func(streamID string) []byte {
		return []byte(streamBodyTagPrefix + streamID)
	})
}

// build derives the keys, then stamps the call with timestamp, nonce and id
// (callID when the caller supplied one) before minting, signing and sealing.
// signedBody returns the bytes to sign for the final call id.
func build(cfg Config, kind, method, callID string, signedBody func(callID string) []byte) (Envelope, error) {
	keys := cfg.Deriver.DeriveSet(cfg.keyInputs())

	timestamp := cfg.Now().UnixMilli()
	nonce, err := cfg.Entropy.Nonce()
	if err != nil {
		return Envelope{}, err
	}
	if callID == "" {
		callID = cfg.Entropy.NewID()
	}
	body := signedBody(callID)

	claims := token.Claims{
		Timestamp: timestamp,
		Nonce:     nonce,
		Method:    method,
	}
	if kind == KindStream {
		claims.StreamID = callID
		claims.StreamInit = true
	} else {
		claims.RequestID = callID
	}
	bearer, err := cfg.Minter.Mint(claims, cfg.header(), keys.Token.Bytes())
	if err != nil {
		return Envelope{}, fmt.Errorf("interceptor: mint token: %w", err)
	}

	signature := cfg.Signer.Sign(signing.Request{
		Method:      method,
		Timestamp:   timestamp,
		Nonce:       nonce,
		Body:        body,
		AccessToken: cfg.AccessToken,
	}, keys.Signing.Bytes())

	env := Envelope{
		Kind:          kind,
		Method:        method,
		Timestamp:     timestamp,
		Nonce:         nonce,
		CallID:        callID,
		Signature:     signature,
		Bearer:        bearer,
		RuntimeNumber: cfg.RuntimeNumber,
		RuntimeTime:   cfg.RuntimeTime,
		OS:            cfg.Identity.OS,
		ServerVersion: cfg.Identity.ServerVersion,
	}
	if kind == KindUnary {
		env.ClientIP = cfg.Identity.ClientIP
		env.CountryCode = cfg.Identity.CountryCode
	}

	derivedKey := keys.Encryption.Bytes()
	env.EncryptedAccessToken = seal(cfg, &env, KeyEncryptedAccessToken, cfg.AccessToken, derivedKey)
	env.EncryptedUserEmail = seal(cfg, &env, KeyEncryptedUserEmail, cfg.Identity.Email, derivedKey)
	// The user id is sealed with the raw encryption secret, unlike the other fields.
	env.EncryptedUserID = seal(cfg, &env, KeyEncryptedUserID, cfg.Identity.UserID, []byte(cfg.Secrets.EncryptionKey))
	env.EncryptedISR = seal(cfg, &env, KeyEncryptedISR, cfg.isrPayload(), derivedKey)

	return env, nil
}

func seal(cfg Config, env *Envelope, field, plaintext string, key []byte) string {
	res := cfg.Encryptor.Seal(plaintext, key)
	if res.Fallback {
		env.FallbackFields = append(env.FallbackFields, field)
		cfg.Metrics.fallback(field)
	}
	return res.Value
}

var deterministic = proto.MarshalOptions{Deterministic: true}

// encodeBody serializes the request for hashing: protobuf messages with
// deterministic marshaling, raw bytes as-is, anything else as JSON.
func encodeBody(req any) ([]byte, error) {
	switch v := req.(type) {
	case nil:
		return nil, nil
	case proto.Message:
		out, err := deterministic.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("interceptor: encode request: %w", err)
		}
		return out, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("interceptor: encode request: %w", err)
		}
		return out, nil
	}
}

func firstValue(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	for _, v := range md.Get(key) {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
