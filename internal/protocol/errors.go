package protocol

import "errors"

// Kind classifies protocol-level failures. Every kind except transport errors
// is converted into an {ok:false, message} ack for the initiating caller;
// transport errors are handled per-recipient inside the room fabric and never
// surface here.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
)

// Error carries a classification plus a message safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Errorf-style constructors keep call sites short.
func ValidationError(msg string) *Error    { return &Error{Kind: KindValidation, Message: msg} }
func AuthorizationError(msg string) *Error { return &Error{Kind: KindAuthorization, Message: msg} }
func NotFoundError(msg string) *Error      { return &Error{Kind: KindNotFound, Message: msg} }
func ConflictError(msg string) *Error      { return &Error{Kind: KindConflict, Message: msg} }

// UserMessage extracts a human-readable message without leaking internal error
// detail: classified errors pass through, anything else is masked.
func UserMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "internal error"
}

// KindOf returns the classification, or empty for unclassified errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
