package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a login attempt failed. Every kind is terminal for
// the current attempt.
type ErrorKind string

const (
	KindProviderNotFound       ErrorKind = "provider_not_found"
	KindProviderDenied         ErrorKind = "provider_denied"
	KindInvalidState           ErrorKind = "invalid_state"
	KindProviderExchangeFailed ErrorKind = "provider_exchange_failed"
	KindMissingEmail           ErrorKind = "missing_email"
	KindEmailNotVerified       ErrorKind = "email_not_verified"
	KindUnknownUser            ErrorKind = "unknown_user"
	KindAccessDenied           ErrorKind = "access_denied"
	// KindAccountUnavailable is returned when the user store or session
	// backend fails while resolving the account.
	KindAccountUnavailable ErrorKind = "account_unavailable"
)

// Kind sentinels for errors.Is checks, e.g. errors.Is(err, auth.ErrInvalidState).
var (
	ErrProviderNotFound       = &Error{Kind: KindProviderNotFound}
	ErrProviderDenied         = &Error{Kind: KindProviderDenied}
	ErrInvalidState           = &Error{Kind: KindInvalidState}
	ErrProviderExchangeFailed = &Error{Kind: KindProviderExchangeFailed}
	ErrMissingEmail           = &Error{Kind: KindMissingEmail}
	ErrEmailNotVerified       = &Error{Kind: KindEmailNotVerified}
	ErrUnknownUser            = &Error{Kind: KindUnknownUser}
	ErrAccessDenied           = &Error{Kind: KindAccessDenied}
	ErrAccountUnavailable     = &Error{Kind: KindAccountUnavailable}
)

// Predefined errors related to talking to a provider. They are wrapped as the
// cause of a KindProviderExchangeFailed error.
var (
	// ErrFailedToExchangeCode indicates an error occurred during the token exchange process.
	ErrFailedToExchangeCode = errors.New("failed to exchange code for token")
	// ErrFailedToGetUserInfo indicates an error occurred while fetching user details from the provider.
	ErrFailedToGetUserInfo = errors.New("failed to get user info")
	// ErrInvalidToken indicates the provider returned a token that is not usable.
	ErrInvalidToken = errors.New("received invalid token from provider")
)

// Error is the tagged failure of one login attempt. Message is safe to show to
// the end user; Err holds the underlying cause, if any.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so the package sentinels match any error of the
// same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the ErrorKind carried by err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserCaused reports whether the failure was triggered by the end user or the
// configured policy rather than by a system fault.
func (k ErrorKind) UserCaused() bool {
	switch k {
	case KindProviderExchangeFailed, KindAccountUnavailable:
		return false
	default:
		return k != ""
	}
}
