package secrets

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("secrets: not found")
	ErrInvalidRef   = errors.New("secrets: invalid reference")
	ErrUnsupported  = errors.New("secrets: unsupported operation")
	ErrEmptyValue   = errors.New("secrets: empty value")
	ErrInvalidKey   = errors.New("secrets: invalid key")
	ErrMissingNames = errors.New("secrets: hmac, encryption and api secret names are required")
)

// ValidateReference performs basic checks on a reference.
func ValidateReference(ref Reference) error {
	if strings.TrimSpace(ref.Name) == "" {
		return ErrInvalidRef
	}
	if strings.ContainsAny(ref.Name, " \t\n") {
		return ErrInvalidRef
	}
	return nil
}
