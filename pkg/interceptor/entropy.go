package interceptor

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// nonceBytes gives 128-bit nonces.
const nonceBytes = 16

// Entropy supplies per-call nonces and request/stream ids.
type Entropy interface {
	Nonce() (string, error)
	NewID() string
}

// RandomEntropy draws nonces from a crypto-grade reader and ids from uuid v4.
type RandomEntropy struct {
	Reader io.Reader
}

var _ Entropy = RandomEntropy{}

// Nonce returns 16 random bytes, hex encoded.
func (e RandomEntropy) Nonce() (string, error) {
	r := e.Reader
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, nonceBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("interceptor: nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewID returns a random uuid string.
func (RandomEntropy) NewID() string {
	return uuid.NewString()
}
