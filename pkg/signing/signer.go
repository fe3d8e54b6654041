// Package signing builds the canonical representation of an outbound call and
// authenticates it with HMAC-SHA256.
//
// Only method, timestamp, nonce, the body hash and the access token hash are
// covered. Any other metadata travelling with the call is not authenticated.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Delimiter separates canonical string fields.
const Delimiter = "|"

// Request is the signed subset of a call.
type Request struct {
	Method      string
	Timestamp   int64
	Nonce       string
	Body        []byte
	AccessToken string
}

// Signer produces and checks request signatures.
type Signer interface {
	Sign(req Request, key []byte) string
	Verify(req Request, key []byte, signature string) bool
}

// HMACSigner signs with HMAC-SHA256 and hex encodes the result.
type HMACSigner struct{}

var _ Signer = HMACSigner{}

// HashHex returns the lowercase hex SHA-256 of data.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CanonicalString renders method|timestamp|nonce|sha256(body)|sha256(token).
func CanonicalString(req Request) string {
	return strings.Join([]string{
		req.Method,
		strconv.FormatInt(req.Timestamp, 10),
		req.Nonce,
		HashHex(req.Body),
		HashHex([]byte(req.AccessToken)),
	}, Delimiter)
}

// Sign returns the hex HMAC of the canonical string.
func (HMACSigner) Sign(req Request, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(CanonicalString(req)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares in constant time.
func (s HMACSigner) Verify(req Request, key []byte, signature string) bool {
	want := s.Sign(req, key)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}
