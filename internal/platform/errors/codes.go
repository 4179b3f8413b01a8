// Package errors provides structured error handling with gRPC status mapping.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session command errors
	CodeSessionIDRequired       Code = "SESSION_ID_REQUIRED"
	CodeSessionWrongIdentity    Code = "SESSION_WRONG_IDENTITY"
	CodeSessionNotFound         Code = "SESSION_NOT_FOUND"
	CodeSessionAlreadyLoggedOut Code = "SESSION_ALREADY_LOGGED_OUT"

	// Cascade errors
	CodeUserIDRequired Code = "USER_ID_REQUIRED"

	// Locale errors
	CodeLanguageInvalid Code = "LANGUAGE_INVALID"
	CodeTimezoneInvalid Code = "TIMEZONE_INVALID"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeEventOutOfOrder  Code = "EVENT_OUT_OF_ORDER"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps the domain error code to a canonical gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeSessionIDRequired, CodeLanguageInvalid, CodeTimezoneInvalid, CodeUserIDRequired:
		return codes.InvalidArgument
	case CodeSessionWrongIdentity:
		return codes.PermissionDenied
	case CodeSessionNotFound, CodeNotFound:
		return codes.NotFound
	case CodeSessionAlreadyLoggedOut:
		return codes.FailedPrecondition
	case CodeEventOutOfOrder:
		return codes.Aborted
	case CodeStoreUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
