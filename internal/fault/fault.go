package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, externally visible failure category. Handlers map a
// Kind to an HTTP status; internal error detail never crosses the API
// boundary.
type Kind string

const (
	InvalidTransition Kind = "invalid_transition"
	BudgetExceeded    Kind = "budget_exceeded"
	MissingEvidence   Kind = "missing_evidence"
	NotAccepted       Kind = "not_accepted"
	Unauthorized      Kind = "unauthorized"
	StoreConflict     Kind = "store_conflict"
	NotFound          Kind = "not_found"
	LimitExceeded     Kind = "limit_exceeded"
	InvalidArgument   Kind = "invalid_argument"
)

type Error struct {
	Kind    Kind   `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or "" if err is not a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is lets callers match faults by kind with errors.Is against a bare
// &Error{Kind: k}.
func (e *Error) Is(target error) bool {
	var fe *Error
	if !errors.As(target, &fe) {
		return false
	}
	return fe.Kind == e.Kind && (fe.Message == "" || fe.Message == e.Message)
}

// HTTPStatus maps a failure kind to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidTransition, MissingEvidence, BudgetExceeded, LimitExceeded:
		return http.StatusUnprocessableEntity
	case NotAccepted, Unauthorized:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case StoreConflict:
		return http.StatusConflict
	case InvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
