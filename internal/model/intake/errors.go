package intake

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures that are reported back to the user.
type ErrorKind string

const (
	ErrUserNotLinked       ErrorKind = "UserNotLinked"
	ErrExtractionFailed    ErrorKind = "ExtractionFailed"
	ErrNoCategories        ErrorKind = "NoCategories"
	ErrNoMatchingCategory  ErrorKind = "NoMatchingCategory"
	ErrCardNotResolved     ErrorKind = "CardNotResolved"
	ErrShareTargetNotFound ErrorKind = "ShareTargetNotFound"
	ErrLimitReached        ErrorKind = "LimitReached"
	ErrPersistence         ErrorKind = "PersistenceError"
	ErrPendingExpired      ErrorKind = "PendingExpired"
	ErrInvalidReply        ErrorKind = "InvalidReply"
)

// Reasons refine ExtractionFailed, CardNotResolved and LimitReached.
const (
	ReasonLowConfidence = "lowConfidence"
	ReasonNoAmount      = "noAmount"
	ReasonInvalidShare  = "invalidShare"
	ReasonNoCards       = "noCards"
	ReasonWhatsAppFree  = "whatsappFree"
	ReasonSharedTierCap = "sharedTierCap"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// NewError builds an Error; err may be nil.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += "{" + e.Reason + "}"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by reason when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// KindOf extracts the ErrorKind of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf extracts the reason of a classified error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
