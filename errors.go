package neolink

import (
	"errors"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// ErrorKind classifies the failures the relation engine reports.
type ErrorKind string

const (
	KindNotFound              ErrorKind = "not_found"
	KindTypeMismatch          ErrorKind = "type_mismatch"
	KindDuplicateRelationship ErrorKind = "duplicate_relationship"
	KindInvalidSchemaSetup    ErrorKind = "invalid_schema_setup"
)

// Error is a relation engine failure. It matches the sentinel of its kind
// under errors.Is, so callers can test errors.Is(err, ErrTypeMismatch).
type Error struct {
	Kind     ErrorKind
	Relation string
	Message  string
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Relation != "" {
		msg += " [" + e.Relation + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Relation == "" && t.Message == ""
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Relation: e.Relation, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// WithRelation returns a copy of the error naming the relation it concerns
func (e *Error) WithRelation(rel string) *Error {
	return &Error{Kind: e.Kind, Relation: rel, Message: e.Message, Err: e.Err}
}

// WithErr returns a copy of the error wrapping err
func (e *Error) WithErr(err error) *Error {
	return &Error{Kind: e.Kind, Relation: e.Relation, Message: e.Message, Err: err}
}

// Sentinels for errors.Is.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrTypeMismatch          = &Error{Kind: KindTypeMismatch}
	ErrDuplicateRelationship = &Error{Kind: KindDuplicateRelationship}
	ErrInvalidSchemaSetup    = &Error{Kind: KindInvalidSchemaSetup}
)

// storeErr translates storage misses into ErrNotFound and leaves other errors
// untouched.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graph.ErrNodeNotFound) || errors.Is(err, graph.ErrEdgeNotFound) {
		return ErrNotFound.WithErr(err)
	}
	return err
}
