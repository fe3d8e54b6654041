// Package identity holds the session-scoped values captured once at bootstrap
// and shared read-only by every outbound call.
package identity

import "strings"

// ClientIdentity describes the signed-in user and the client platform.
type ClientIdentity struct {
	UserID        string
	Email         string
	OS            string
	ClientIP      string
	CountryCode   string
	ServerVersion string
}

// HasUser reports whether a user id is present.
func (c ClientIdentity) HasUser() bool {
	return strings.TrimSpace(c.UserID) != ""
}

// SecretMaterial holds the long-lived secrets and the session global key.
// It lives in memory only.
type SecretMaterial struct {
	HMACKey       string
	EncryptionKey string
	APIKey        string
	GlobalKey     string
}

// String keeps secret values out of logs.
func (SecretMaterial) String() string { return "identity.SecretMaterial(redacted)" }

// GoString keeps secret values out of %#v output.
func (s SecretMaterial) GoString() string { return s.String() }
