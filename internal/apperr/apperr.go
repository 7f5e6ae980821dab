// Package apperr is the error taxonomy shared by every component: each
// failure mode the router can produce is a Kind, and the HTTP layer maps
// Kind to status with a single table instead of re-deriving it per endpoint.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the recoverable and terminal failure modes produced by the
// router pipeline.
type Kind string

const (
	Unauthorized             Kind = "Unauthorized"
	SubscriptionRequired     Kind = "SubscriptionRequired"
	AgentNotFound            Kind = "AgentNotFound"
	AgentOrUserNotFound      Kind = "AgentOrUserNotFound"
	NoValidPermits           Kind = "NoValidPermits"
	InsufficientPermitBalance Kind = "InsufficientPermitBalance"
	InsufficientBalance      Kind = "InsufficientBalance"
	InsufficientAllowance    Kind = "InsufficientAllowance"
	InsufficientPermit2Allowance Kind = "InsufficientPermit2Allowance"
	UnsupportedRoute         Kind = "UnsupportedRoute"
	PermitStale              Kind = "PermitStale"
	AttestationFailed        Kind = "AttestationFailed"
	ReceiptTimeout           Kind = "ReceiptTimeout"
	ApiCallFailed            Kind = "ApiCallFailed"
	ConfigurationError       Kind = "ConfigurationError"
	InvalidParameters        Kind = "InvalidParameters"
	InvalidJson              Kind = "InvalidJson"
	RateLimited              Kind = "RateLimited"
	UnsupportedChain         Kind = "UnsupportedChain"
	ValidationError          Kind = "ValidationError"
	DuplicateCall            Kind = "DuplicateCall"
	InternalError            Kind = "InternalError"
)

// statusByKind is the single source of truth for §7/§6's status map.
var statusByKind = map[Kind]int{
	Unauthorized:                 http.StatusUnauthorized,
	SubscriptionRequired:         http.StatusForbidden,
	AgentNotFound:                http.StatusNotFound,
	AgentOrUserNotFound:          http.StatusNotFound,
	NoValidPermits:               http.StatusPaymentRequired,
	InsufficientPermitBalance:    http.StatusPaymentRequired,
	InsufficientBalance:          http.StatusPaymentRequired,
	InsufficientAllowance:        http.StatusPaymentRequired,
	InsufficientPermit2Allowance: http.StatusPaymentRequired,
	UnsupportedRoute:             http.StatusBadRequest,
	PermitStale:                  http.StatusConflict,
	AttestationFailed:            http.StatusBadGateway,
	ReceiptTimeout:                http.StatusBadGateway,
	ApiCallFailed:                http.StatusBadGateway,
	ConfigurationError:           http.StatusInternalServerError,
	InvalidParameters:            http.StatusBadRequest,
	InvalidJson:                  http.StatusBadRequest,
	RateLimited:                  http.StatusTooManyRequests,
	UnsupportedChain:             http.StatusBadRequest,
	ValidationError:              http.StatusInternalServerError,
	DuplicateCall:                http.StatusConflict,
	InternalError:                http.StatusInternalServerError,
}

// Error wraps a Kind and an optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error carrying cause as its wrapped error.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Status returns the HTTP status code for a Kind, defaulting to 500 for
// unmapped kinds (should not happen; every Kind above has an entry).
func Status(k Kind) int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to InternalError otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return InternalError
}

// HTTPStatus is a convenience wrapper over Status(KindOf(err)).
func HTTPStatus(err error) int {
	return Status(KindOf(err))
}
