// Package derive turns long-lived secrets into short-lived, purpose-bound keys.
//
// A key is SHA-256(secret || globalKey || purpose). The global key is one of a
// rotating set of per-user keys chosen for the session, so rotating it changes
// every derived key without touching the long-lived secrets. Empty inputs are
// accepted and produce a weak but deterministic key.
package derive

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Purpose labels keep keys derived from the same secret distinct per use.
const (
	PurposeToken      = "jwt_key"
	PurposeSigning    = "signing_key"
	PurposeEncryption = "encryption_key"
)

// Size is the length in bytes of every derived key.
const Size = sha256.Size

var errKeyMarshal = errors.New("derive: keys cannot be serialized")

// Key is derived key material. It never renders its bytes through fmt or
// encoding/json; use Bytes to hand it to a primitive.
type Key struct {
	b [Size]byte
}

// Bytes returns a copy of the key material.
func (k Key) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, k.b[:])
	return out
}

// Equal reports whether both keys hold the same material.
func (k Key) Equal(other Key) bool { return k.b == other.b }

func (Key) String() string   { return "derive.Key(redacted)" }
func (Key) GoString() string { return "derive.Key(redacted)" }

// Format keeps %x and %v from leaking the material.
func (k Key) Format(f fmt.State, _ rune) { _, _ = f.Write([]byte(k.String())) }

func (Key) MarshalJSON() ([]byte, error) { return nil, errKeyMarshal }
func (Key) MarshalText() ([]byte, error) { return nil, errKeyMarshal }

// Derive hashes secret, globalKey and purpose into a fixed-length key.
func Derive(secret, globalKey, purpose string) Key {
	h := sha256.New()
	h.Write([]byte(secret))
	h.Write([]byte(globalKey))
	h.Write([]byte(purpose))
	var k Key
	copy(k.b[:], h.Sum(nil))
	return k
}

// KeySet holds the three per-call keys. It is built for a single call and
// dropped afterwards.
type KeySet struct {
	Signing    Key
	Encryption Key
	Token      Key
}

// Inputs are the long-lived secrets a KeySet is derived from.
type Inputs struct {
	SigningSecret    string
	EncryptionSecret string
	TokenSecret      string
	GlobalKey        string
}

// Deriver produces a KeySet. Swappable so callers can observe or stub derivation.
type Deriver interface {
	DeriveSet(in Inputs) KeySet
}

// SHA256Deriver is the production Deriver.
type SHA256Deriver struct{}

var _ Deriver = SHA256Deriver{}

// DeriveSet derives all three purpose-bound keys.
func (SHA256Deriver) DeriveSet(in Inputs) KeySet {
	return KeySet{
		Signing:    Derive(in.SigningSecret, in.GlobalKey, PurposeSigning),
		Encryption: Derive(in.EncryptionSecret, in.GlobalKey, PurposeEncryption),
		Token:      Derive(in.TokenSecret, in.GlobalKey, PurposeToken),
	}
}
