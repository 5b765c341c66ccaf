package interfaces

import (
	"errors"
	"fmt"
)

// Row maps a column name to the value a backend returned for it
type Row map[string]any

// Dialect identifies the SQL flavour spoken by a backend
type Dialect string

const (
	// DialectSQLite uses "?" placeholders (embedded sqlite and D1)
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses "$n" placeholders
	DialectPostgres Dialect = "postgres"
)

// ErrorKind classifies backend failures
type ErrorKind int

const (
	// KindUnavailable means the backend could not be reached or timed out
	KindUnavailable ErrorKind = iota + 1
	// KindRejected means the backend answered but refused the statement
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "backend unavailable"
	case KindRejected:
		return "backend rejected"
	default:
		return "backend error"
	}
}

// Common backend errors, matched with errors.Is against a *BackendError
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBackendRejected    = errors.New("backend rejected statement")
)

// BackendError wraps a backend failure with the upstream detail
type BackendError struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Err    error
}

func (e *BackendError) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrBackendUnavailable:
		return e.Kind == KindUnavailable
	case ErrBackendRejected:
		return e.Kind == KindRejected
	}
	return false
}

// Unavailable builds a KindUnavailable error
func Unavailable(op string, err error) *BackendError {
	return &BackendError{Kind: KindUnavailable, Op: op, Err: err}
}

// Rejected builds a KindRejected error with upstream detail
func Rejected(op, detail string, err error) *BackendError {
	return &BackendError{Kind: KindRejected, Op: op, Detail: detail, Err: err}
}

// Unavailablef builds a KindUnavailable error from a formatted detail
func Unavailablef(op, format string, args ...any) *BackendError {
	return &BackendError{Kind: KindUnavailable, Op: op, Detail: fmt.Sprintf(format, args...)}
}
