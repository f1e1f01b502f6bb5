// Package agenterr defines the error taxonomy shared by the query
// orchestration pipeline. Callers branch on error kind with errors.As.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure
type Kind string

const (
	KindConfiguration   Kind = "CONFIGURATION"
	KindClassification  Kind = "CLASSIFICATION"
	KindQueryGeneration Kind = "QUERY_GENERATION"
	KindQueryExecution  Kind = "QUERY_EXECUTION"
	KindRetrieval       Kind = "RETRIEVAL"
	KindTimeout         Kind = "TIMEOUT"
	KindEvidenceMissing Kind = "EVIDENCE_MISSING"
)

// Error is a categorized pipeline error wrapping an optional cause
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a categorized error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to a categorized error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Configuration signals a fatal startup-time misconfiguration.
func Configuration(message string, cause error) *Error {
	return Wrap(KindConfiguration, message, cause)
}

// Classification signals an unparsable or invalid LLM classification.
// Routing cannot proceed on these, so they always propagate.
func Classification(message string, cause error) *Error {
	return Wrap(KindClassification, message, cause)
}

// QueryGeneration signals an invalid structured pipeline before execution.
func QueryGeneration(message string, cause error) *Error {
	return Wrap(KindQueryGeneration, message, cause)
}

// QueryExecution signals a structured-store call failure.
func QueryExecution(message string, cause error) *Error {
	return Wrap(KindQueryExecution, message, cause)
}

// Retrieval signals a vector-store call failure.
func Retrieval(message string, cause error) *Error {
	return Wrap(KindRetrieval, message, cause)
}

// Timeout signals a step or branch exceeding its deadline.
func Timeout(message string, cause error) *Error {
	return Wrap(KindTimeout, message, cause)
}

// EvidenceMissing signals a turn that ended without any completed
// search to answer from.
func EvidenceMissing(message string, cause error) *Error {
	return Wrap(KindEvidenceMissing, message, cause)
}

// KindOf extracts the category of err, or empty if err is not a
// pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given category.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
