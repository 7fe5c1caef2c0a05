package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingSecret is returned when a token operation runs without a signing secret.
var ErrMissingSecret = errors.New("jwt secret is not configured")

// Kind classifies authorization failures by what the client can do about them.
type Kind int

const (
	// KindNotAuthenticated is recoverable by logging in again.
	KindNotAuthenticated Kind = iota + 1
	// KindForbidden needs a privilege change.
	KindForbidden
	// KindInternal hides the cause from the client.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindForbidden:
		return "forbidden"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Reason is the machine-checkable rejection cause sent to clients.
type Reason string

const (
	ReasonNoToken         Reason = "no_token"
	ReasonInvalidToken    Reason = "invalid_token"
	ReasonTokenExpired    Reason = "token_expired"
	ReasonAccountNotFound Reason = "account_not_found"
	ReasonPasswordChanged Reason = "password_changed"
	ReasonForbidden       Reason = "forbidden"
	ReasonInternal        Reason = "internal"
	ReasonAuthenticated   Reason = "authenticated"
	ReasonAnonymous       Reason = "anonymous"
)

var messages = map[Reason]string{
	ReasonNoToken:         "no token provided, please log in",
	ReasonInvalidToken:    "invalid token, please log in again",
	ReasonTokenExpired:    "token expired, please log in again",
	ReasonAccountNotFound: "the account belonging to this token no longer exists",
	ReasonPasswordChanged: "password changed recently, please log in again",
	ReasonForbidden:       "you do not have permission to perform this action",
	ReasonInternal:        "something went wrong",
}

// Error is the single failure type produced by the authorizer.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Err     error
}

func newError(kind Kind, reason Reason, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: messages[reason], Err: cause}
}

func notAuthenticated(reason Reason, cause error) *Error {
	return newError(KindNotAuthenticated, reason, cause)
}

func forbidden() *Error {
	return newError(KindForbidden, ReasonForbidden, nil)
}

func internal(cause error) *Error {
	return newError(KindInternal, ReasonInternal, cause)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the kind onto the HTTP status the client receives.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
