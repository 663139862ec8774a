package feed

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies workflow failures for the HTTP layer.
type Kind int

const (
	KindUnclassified Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindUninitialized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindUninitialized:
		return "uninitialized"
	default:
		return "unclassified"
	}
}

// StatusCode maps k to an HTTP status.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"msg"`
}

// Error is the single error type returned by Service. Stored is set when the
// failure happened after the post write committed, so the post still
// references its image.
type Error struct {
	Kind    Kind
	Message string
	Data    []FieldError
	Err     error
	Stored  bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(msg string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Message: msg, Data: fields}
}

func notFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func authorizationError() error {
	return &Error{Kind: KindAuthorization, Message: "Not authorized"}
}

func unclassified(msg string, err error) error {
	return &Error{Kind: KindUnclassified, Message: msg, Err: err}
}

// KindOf returns the Kind of err, KindUnclassified for foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnclassified
}

// markStored flags err as occurring after the post write committed.
func markStored(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		fe.Stored = true
		return err
	}
	return &Error{Kind: KindUnclassified, Message: err.Error(), Err: err, Stored: true}
}

// UploadKept reports whether the image referenced by a failed call is still
// owned by a stored post and must not be discarded.
func UploadKept(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Stored
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAuthorization reports whether err is an ownership failure.
func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }
