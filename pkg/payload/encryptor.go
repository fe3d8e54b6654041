// Package payload encrypts envelope fields with XChaCha20-Poly1305.
//
// The caller's key, of any length, is normalized to the cipher key size with
// SHA-256. Each call draws a fresh nonce that travels with the ciphertext as
// base64(nonce) ":" base64(ciphertext).
//
// When encryption fails the plaintext is returned as "plain:" base64(plaintext)
// so the call still goes out. That output is not confidential. Seal reports
// which path was taken; Encrypt only returns the value.
package payload

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/chacha20poly1305"
)

// FallbackPrefix marks values carried without encryption.
const FallbackPrefix = "plain:"

const separator = ":"

var (
	ErrMalformed = errors.New("payload: malformed ciphertext")
	ErrDecrypt   = errors.New("payload: decrypt failed")
)

// Result describes one Seal call.
type Result struct {
	Value    string
	Fallback bool
	Err      error
}

// Encryptor encrypts envelope fields.
type Encryptor interface {
	Encrypt(plaintext string, key []byte) string
	Seal(plaintext string, key []byte) Result
}

// Cipher is the XChaCha20-Poly1305 Encryptor.
type Cipher struct {
	random    io.Reader
	newAEAD   func(key []byte) (cipher.AEAD, error)
	logger    logger.Logger
	fallbacks prometheus.Counter
}

var _ Encryptor = (*Cipher)(nil)

// Option configures a Cipher.
type Option func(*Cipher)

// WithRandom overrides the nonce source.
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) {
		if r != nil {
			c.random = r
		}
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l logger.Logger) Option {
	return func(c *Cipher) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFallbackCounter counts every fallback encoding.
func WithFallbackCounter(counter prometheus.Counter) Option {
	return func(c *Cipher) {
		c.fallbacks = counter
	}
}

// New builds a Cipher reading nonces from crypto/rand.
func New(opts ...Option) *Cipher {
	c := &Cipher{
		random:  rand.Reader,
		newAEAD: chacha20poly1305.NewX,
		logger:  &logger.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NormalizeKey hashes key to the cipher key size.
func NormalizeKey(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// Encrypt returns the encoded ciphertext, or the fallback encoding on failure.
func (c *Cipher) Encrypt(plaintext string, key []byte) string {
	return c.Seal(plaintext, key).Value
}

// Seal encrypts plaintext and reports whether the fallback was used.
func (c *Cipher) Seal(plaintext string, key []byte) Result {
	value, err := c.seal(plaintext, key)
	if err == nil {
		return Result{Value: value}
	}
	c.logger.Warn("payload encryption failed, sending fallback encoding", logger.Field{Key: "error", Value: err})
	if c.fallbacks != nil {
		c.fallbacks.Inc()
	}
	return Result{Value: EncodeFallback(plaintext), Fallback: true, Err: err}
}

func (c *Cipher) seal(plaintext string, key []byte) (string, error) {
	aead, err := c.newAEAD(NormalizeKey(key))
	if err != nil {
		return "", fmt.Errorf("payload: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("payload: nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + separator + base64.StdEncoding.EncodeToString(sealed), nil
}

// EncodeFallback renders the reversible, non-confidential encoding.
func EncodeFallback(plaintext string) string {
	return FallbackPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext))
}

// IsFallback reports whether value was produced by the fallback path.
func IsFallback(value string) bool {
	return strings.HasPrefix(value, FallbackPrefix)
}

// Decrypt reverses Encrypt for both the primary and the fallback encoding.
func Decrypt(value string, key []byte) (string, error) {
	if IsFallback(value) {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, FallbackPrefix))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return string(raw), nil
	}
	encNonce, encSealed, ok := strings.Cut(value, separator)
	if !ok {
		return "", ErrMalformed
	}
	nonce, err := base64.StdEncoding.DecodeString(encNonce)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(encSealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	aead, err := chacha20poly1305.NewX(NormalizeKey(key))
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", ErrMalformed
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
