package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrSessionExpired     = errors.New("session expired")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidTransition  = errors.New("invalid session state transition")

	ErrEmptyPost      = errors.New("post requires a caption or an image")
	ErrCaptionTooLong = errors.New("caption too long")
	ErrPostNotFound   = errors.New("post not found")
	ErrNotConfirmed   = errors.New("deletion not confirmed")
	ErrForbidden      = errors.New("access forbidden")
)

// ErrorKind classifies failures surfaced by the client core.
type ErrorKind string

const (
	KindAuth             ErrorKind = "auth"
	KindProfileReconcile ErrorKind = "profile_reconcile"
	KindFetch            ErrorKind = "fetch"
	KindPostCreation     ErrorKind = "post_creation"
	KindDeletion         ErrorKind = "deletion"
)

// Error is a classified failure carrying its underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is a classified Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
