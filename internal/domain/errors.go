// Package domain defines the data model, plug-in ports, and errors of the relational algebra.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies algebra failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidSchema
	KindMissingRelation
	KindDuplicateFeature
	KindSchemaMismatch
	KindPredicateFailure
	KindTypeMismatch
	KindTransformFailure
	KindEngineFailure
)

var kindNames = map[ErrorKind]string{
	KindUnknown:          "unknown",
	KindInvalidSchema:    "invalid schema",
	KindMissingRelation:  "missing relation",
	KindDuplicateFeature: "duplicate feature",
	KindSchemaMismatch:   "schema mismatch",
	KindPredicateFailure: "predicate failure",
	KindTypeMismatch:     "type mismatch",
	KindTransformFailure: "transform failure",
	KindEngineFailure:    "engine failure",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type surfaced by operators. Stage names the pipeline
// stage that failed; it is empty until a pipeline tags it.
type Error struct {
	Kind    ErrorKind
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stage != "" {
		return e.Stage + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// ErrInvalidSchema creates an InvalidSchema error with a formatted message.
func ErrInvalidSchema(format string, args ...interface{}) *Error {
	return newError(KindInvalidSchema, nil, format, args...)
}

// ErrMissingRelation creates a MissingRelation error with a formatted message.
func ErrMissingRelation(format string, args ...interface{}) *Error {
	return newError(KindMissingRelation, nil, format, args...)
}

// ErrDuplicateFeature creates a DuplicateFeature error with a formatted message.
func ErrDuplicateFeature(format string, args ...interface{}) *Error {
	return newError(KindDuplicateFeature, nil, format, args...)
}

// ErrSchemaMismatch creates a SchemaMismatch error with a formatted message.
func ErrSchemaMismatch(format string, args ...interface{}) *Error {
	return newError(KindSchemaMismatch, nil, format, args...)
}

// ErrTypeMismatch creates a TypeMismatch error with a formatted message.
func ErrTypeMismatch(format string, args ...interface{}) *Error {
	return newError(KindTypeMismatch, nil, format, args...)
}

// ErrPredicateFailure wraps a predicate error.
func ErrPredicateFailure(cause error, format string, args ...interface{}) *Error {
	return newError(KindPredicateFailure, cause, format, args...)
}

// ErrTransformFailure wraps a transformation plug-in error.
func ErrTransformFailure(cause error, format string, args ...interface{}) *Error {
	return newError(KindTransformFailure, cause, format, args...)
}

// ErrEngineFailure wraps an error returned by a tabular engine backend.
func ErrEngineFailure(cause error, format string, args ...interface{}) *Error {
	return newError(KindEngineFailure, cause, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// WithStage tags err with the stage that produced it. A stage already present is
// nested below the new one ("crawl/slice_select"). Errors that are not *Error are
// wrapped as KindUnknown so the stage is never lost.
func WithStage(err error, stage string) error {
	if err == nil || stage == "" {
		return err
	}
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindUnknown, Stage: stage, Message: "stage failed", Err: err}
	}
	tagged := *e
	if tagged.Stage == "" {
		tagged.Stage = stage
	} else {
		tagged.Stage = stage + "/" + tagged.Stage
	}
	return &tagged
}
