package core

import "github.com/pkg/errors"

// ErrorKind classifies domain errors. The API maps each kind to a transport status.
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindCapacityExceeded
	KindInvalidState
	KindValidation
)

var kindNames = map[ErrorKind]string{
	KindUnexpected:       "unexpected",
	KindAuthentication:   "authentication",
	KindAuthorization:    "authorization",
	KindNotFound:         "not_found",
	KindConflict:         "conflict",
	KindCapacityExceeded: "capacity_exceeded",
	KindInvalidState:     "invalid_state",
	KindValidation:       "validation",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnexpected]
}

// Error is a domain error whose Message is safe to return to API clients.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NewAuthenticationError(msg string) error { return &Error{Kind: KindAuthentication, Message: msg} }
func NewAuthorizationError(msg string) error  { return &Error{Kind: KindAuthorization, Message: msg} }
func NewNotFoundError(msg string) error       { return &Error{Kind: KindNotFound, Message: msg} }
func NewConflictError(msg string) error       { return &Error{Kind: KindConflict, Message: msg} }
func NewCapacityError(msg string) error       { return &Error{Kind: KindCapacityExceeded, Message: msg} }
func NewInvalidStateError(msg string) error   { return &Error{Kind: KindInvalidState, Message: msg} }
func NewRequiredError(msg string) error       { return &Error{Kind: KindValidation, Message: msg} }

// KindOf returns the kind of the first *Error or *ValidationError found in err's chain,
// KindUnexpected otherwise.
func KindOf(err error) ErrorKind {
	var domErr *Error
	if errors.As(err, &domErr) {
		return domErr.Kind
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return KindValidation
	}
	return KindUnexpected
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
