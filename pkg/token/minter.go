// Package token mints the short-lived bearer token attached to each call.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL bounds the replay window of a minted token.
const TTL = 60 * time.Second

// Header keys carried next to alg/typ.
const (
	HeaderOS            = "os"
	HeaderServerVersion = "os_server_version"
)

var (
	ErrMissingKey  = errors.New("token: signing key is required")
	ErrInvalid     = errors.New("token: invalid token")
	ErrMissingCall = errors.New("token: method and request or stream id are required")
)

// Claims binds a token to one call or one stream.
type Claims struct {
	Timestamp  int64  `json:"timestamp"`
	Nonce      string `json:"nonce"`
	RequestID  string `json:"request_id,omitempty"`
	StreamID   string `json:"stream_id,omitempty"`
	Method     string `json:"method"`
	StreamInit bool   `json:"streamInit,omitempty"`
	jwt.RegisteredClaims
}

// Header values identifying the client platform.
type Header struct {
	OS            string
	ServerVersion string
}

// Minter issues signed tokens.
type Minter interface {
	Mint(claims Claims, header Header, key []byte) (string, error)
}

// JWTMinter signs HS256 JWTs that expire TTL after issue.
type JWTMinter struct {
	now func() time.Time
}

var _ Minter = (*JWTMinter)(nil)

// NewJWTMinter returns a minter; a nil clock falls back to time.Now.
func NewJWTMinter(now func() time.Time) *JWTMinter {
	if now == nil {
		now = time.Now
	}
	return &JWTMinter{now: now}
}

// Mint stamps iat/exp on claims and signs them with key.
func (m *JWTMinter) Mint(claims Claims, header Header, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrMissingKey
	}
	if claims.Method == "" || (claims.RequestID == "" && claims.StreamID == "") {
		return "", ErrMissingCall
	}
	now := m.clock()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(TTL))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header[HeaderOS] = header.OS
	tok.Header[HeaderServerVersion] = header.ServerVersion
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

func (m *JWTMinter) clock() time.Time {
	if m == nil || m.now == nil {
		return time.Now()
	}
	return m.now()
}

// Parse verifies an HS256 token against key and returns its claims and header.
func Parse(raw string, key []byte, opts ...jwt.ParserOption) (*Claims, Header, error) {
	parserOpts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}, opts...)
	parser := jwt.NewParser(parserOpts...)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !tok.Valid {
		return nil, Header{}, ErrInvalid
	}
	hdr := Header{}
	hdr.OS, _ = tok.Header[HeaderOS].(string)
	hdr.ServerVersion, _ = tok.Header[HeaderServerVersion].(string)
	return claims, hdr, nil
}
