// Package errors defines the engagement engine error taxonomy and the
// mapping to the single outbound error reply sent to an offending
// connection. Handler errors never terminate a message loop.
package errors

import (
	"errors"
	"fmt"
)

// Kind partitions failures by how the transport must react.
type Kind string

const (
	KindAuth              Kind = "auth_error"               // connection refused before admission
	KindAuthorization     Kind = "authorization_error"      // identity valid, access denied, connection stays open
	KindValidation        Kind = "validation_error"         // malformed payload, rejected with a reply to the sender
	KindNotFound          Kind = "not_found"                // target post/comment/reaction absent
	KindConflict          Kind = "conflict"                 // duplicate state, mostly handled upstream
	KindTransientDelivery Kind = "transient_delivery_error" // one send failed, connection marked inactive
	KindInternal          Kind = "internal_error"
)

var (
	ErrMissingToken     = fmt.Errorf("missing auth token")
	ErrInvalidToken     = fmt.Errorf("invalid auth token")
	ErrExpiredToken     = fmt.Errorf("expired auth token")
	ErrRoomAccessDenied = fmt.Errorf("no access to room")
	ErrTargetNotFound   = fmt.Errorf("target not found")
	ErrReactionNotFound = fmt.Errorf("no reaction to remove")
	ErrCommentNotFound  = fmt.Errorf("comment not found")
	ErrMaxDepthReached  = fmt.Errorf("max thread depth reached")
	ErrNotCommentAuthor = fmt.Errorf("caller may not edit this comment")
	ErrContentTooLong   = fmt.Errorf("content too long")
	ErrUnknownMessage   = fmt.Errorf("unknown message type")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// EngagementError carries a kind alongside the underlying cause.
type EngagementError struct {
	ErrKind Kind
	Err     error
}

func (e *EngagementError) Error() string {
	return fmt.Sprintf("%s: %v", e.ErrKind, e.Err)
}

func (e *EngagementError) Unwrap() error { return e.Err }

func New(kind Kind, err error) *EngagementError {
	return &EngagementError{ErrKind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) *EngagementError {
	return &EngagementError{ErrKind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf resolves the taxonomy kind of any error. Wrapped
// EngagementErrors win; known sentinels are classified; everything
// else is internal.
func KindOf(err error) Kind {
	var ee *EngagementError
	if errors.As(err, &ee) {
		return ee.ErrKind
	}
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrExpiredToken):
		return KindAuth
	case errors.Is(err, ErrRoomAccessDenied), errors.Is(err, ErrNotCommentAuthor):
		return KindAuthorization
	case errors.Is(err, ErrMaxDepthReached), errors.Is(err, ErrContentTooLong), errors.Is(err, ErrUnknownMessage):
		return KindValidation
	case errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrReactionNotFound), errors.Is(err, ErrCommentNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// Is delegates to the standard library so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As delegates to the standard library.
func As(err error, target any) bool { return errors.As(err, target) }
