// Package apperr provides the typed error taxonomy of the job-card lifecycle. Domain services
// return these errors and the HTTP layer maps their Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound indicates a job card or catalog entry does not exist.
	KindNotFound
	// KindValidation is bad user input (e.g. empty complaint). Never retried.
	KindValidation
	// KindNotVehicleRelated means the classifier judged the complaint off-topic. User-correctable.
	KindNotVehicleRelated
	// KindAnalysisUnavailable means the classifier kept failing after retries.
	KindAnalysisUnavailable
	// KindValidatorUnavailable means the validation model kept failing after retries.
	KindValidatorUnavailable
	// KindNoCapacity means no service center can take the job right now.
	KindNoCapacity
	// KindConflict is a stale version on a conditional write.
	KindConflict
	// KindInvalidTransition is a transition requested from the wrong state.
	KindInvalidTransition
	// KindForbidden is an actor acting outside its capability set.
	KindForbidden
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindNotFound:             "not_found",
	KindValidation:           "validation_input_error",
	KindNotVehicleRelated:    "not_vehicle_related",
	KindAnalysisUnavailable:  "analysis_unavailable",
	KindValidatorUnavailable: "validator_unavailable",
	KindNoCapacity:           "no_capacity_available",
	KindConflict:             "conflict",
	KindInvalidTransition:    "invalid_transition",
	KindForbidden:            "forbidden",
	KindInternal:             "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // operation that failed (optional)
	Err     error       // underlying error (optional)
	Details interface{} // additional details for the response (optional)
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindNotVehicleRelated:
		return http.StatusUnprocessableEntity
	case KindAnalysisUnavailable, KindValidatorUnavailable, KindNoCapacity:
		return http.StatusServiceUnavailable
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Recoverable reports whether the failure leaves the job card in a good state that can be
// retried later by an explicit call.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindAnalysisUnavailable, KindValidatorUnavailable, KindNoCapacity:
		return true
	}
	return false
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp sets the operation and returns the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails attaches response details and returns the error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Validation(message string) *Error { return New(KindValidation, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func InvalidTransition(message string) *Error { return New(KindInvalidTransition, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func NoCapacity(message string) *Error { return New(KindNoCapacity, message) }

func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetKind extracts the error kind from anywhere in the wrap chain.
func GetKind(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err carries an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}
