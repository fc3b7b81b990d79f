package models

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the store, the escrow engine and the dispute resolver.
// Match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidCode       = errors.New("invalid confirmation code")
	ErrRateLimited       = errors.New("rate limited")
	ErrValidation        = errors.New("validation failed")
	ErrUnavailable       = errors.New("unavailable")
	ErrForbidden         = errors.New("forbidden")
	ErrDuplicate         = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
)

// Error carries a caller-facing message for one of the sentinel kinds.
type Error struct {
	kind error
	msg  string
}

// E builds an *Error of the given kind.
func E(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

var kindNames = []struct {
	err  error
	name string
}{
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInvalidCode, "invalid_code"},
	{ErrRateLimited, "rate_limited"},
	{ErrValidation, "validation"},
	{ErrUnavailable, "unavailable"},
	{ErrForbidden, "forbidden"},
	{ErrDuplicate, "duplicate"},
	{ErrUnauthorized, "unauthorized"},
}

// Kind names the taxonomy entry err belongs to: "ok" for nil, "internal" when
// it matches none.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kindNames {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
