package interceptor

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrAuthenticationRequired is returned before any key derivation when the
// session lacks a user id or access token.
var ErrAuthenticationRequired = errors.New("interceptor: authentication required")

// authError carries ErrAuthenticationRequired through errors.Is and maps to
// codes.Unauthenticated for gRPC callers.
type authError struct {
	reason string
}

func (e *authError) Error() string { return ErrAuthenticationRequired.Error() + ": " + e.reason }

func (e *authError) Unwrap() error { return ErrAuthenticationRequired }

// GRPCStatus lets status.FromError and status.Code see the failure.
func (e *authError) GRPCStatus() *status.Status {
	return status.New(codes.Unauthenticated, e.Error())
}

func authRequired(reason string) error {
	return &authError{reason: reason}
}
