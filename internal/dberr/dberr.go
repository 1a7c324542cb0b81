// Package dberr defines the error taxonomy shared by the bulk-update pipeline,
// its row adapters, dialects, and the ID generator.
//
// Callers test categories with errors.Is against the sentinels; the concrete
// *Error keeps the failing operation, the SQL text (when there is one) and the
// original driver error, which stays reachable through errors.As.
package dberr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a missing or invalid setting detected before
	// any database I/O (empty destination, empty key list, bad batch size).
	ErrConfiguration = errors.New("bulkupdate: configuration error")

	// ErrInvalidInput reports unusable input detected before any database
	// I/O (nil row source, key column missing from the cursor).
	ErrInvalidInput = errors.New("bulkupdate: invalid input")

	// ErrSchema reports a destination table or column the backend could not find.
	ErrSchema = errors.New("bulkupdate: schema error")

	// ErrBackend reports any other failed statement.
	ErrBackend = errors.New("bulkupdate: backend execution error")
)

func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsInvalidInput(err error) bool  { return errors.Is(err, ErrInvalidInput) }
func IsSchema(err error) bool        { return errors.Is(err, ErrSchema) }
func IsBackend(err error) bool       { return errors.Is(err, ErrBackend) }

// Error is the concrete error returned by the pipeline.
type Error struct {
	// Kind is one of the package sentinels.
	Kind error
	// Op names the pipeline step, e.g. "create staging" or "update".
	Op string
	// Statement is the SQL text that failed, if any.
	Statement string
	// Cause is the underlying (usually driver) error. May be nil for
	// validation failures.
	Cause error
	// Message is an optional human-readable detail.
	Message string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Statement != "" {
		msg += fmt.Sprintf(" (statement: %s)", e.Statement)
	}
	return msg
}

func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }
func (e *Error) Unwrap() error        { return e.Cause }

// Configf returns an ErrConfiguration for op with a formatted message.
func Configf(op, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Invalidf returns an ErrInvalidInput for op with a formatted message.
func Invalidf(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Classifier maps a raw driver error to ErrSchema or ErrBackend. Dialects
// provide one; a nil Classifier treats everything as ErrBackend.
type Classifier func(err error) error

// Wrap annotates a failed statement. If err is already an *Error it is
// returned unchanged so categories are never double-wrapped.
func Wrap(op, stmt string, err error, classify Classifier) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	kind := ErrBackend
	if classify != nil {
		if k := classify(err); k != nil {
			kind = k
		}
	}
	return &Error{Kind: kind, Op: op, Statement: stmt, Cause: err}
}
