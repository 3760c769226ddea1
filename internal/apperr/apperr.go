package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindForbidden
	KindNotFound
	KindBusinessRule
	KindUnavailable
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindUnavailable:
		return "unavailable"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// HTTPStatus maps an error kind onto the response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

const KeyInternal = "server.internal_error"

// Error carries a stable message key for clients plus the underlying cause
// for logs. Two errors are equal under errors.Is when their keys match.
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func New(kind Kind, key string) *Error {
	return &Error{Kind: kind, Key: key}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
	return e.Key
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Key == t.Key
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Key: e.Key, Err: cause}
}

func Validation(key string) *Error   { return New(KindValidation, key) }
func Auth(key string) *Error         { return New(KindAuth, key) }
func Forbidden(key string) *Error    { return New(KindForbidden, key) }
func NotFound(key string) *Error     { return New(KindNotFound, key) }
func BusinessRule(key string) *Error { return New(KindBusinessRule, key) }
func Unavailable(key string) *Error  { return New(KindUnavailable, key) }

// Storage wraps an infrastructure failure. Clients only ever see KeyInternal.
func Storage(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindStorage, Key: KeyInternal, Err: err}
}

// From extracts the *Error from err's chain, treating anything else as storage.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindStorage, Key: KeyInternal, Err: err}
}
