// Package errs defines the error taxonomy shared by the schema registry,
// validation engine and query compiler.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers that need to branch on it.
type Kind int

const (
	Unknown Kind = iota
	MalformedConstraint
	TypeMismatch
	EvaluationError
	UnknownField
	UnsupportedOperator
	MissingThreshold
	NoJoinPath
	AmbiguousGrouping
	CardinalityViolation
	SchemaConflict
	InvalidDefinition
	MalformedFilter
	MalformedExpression
)

var kindNames = map[Kind]string{
	Unknown:              "Unknown",
	MalformedConstraint:  "MalformedConstraint",
	TypeMismatch:         "TypeMismatch",
	EvaluationError:      "EvaluationError",
	UnknownField:         "UnknownField",
	UnsupportedOperator:  "UnsupportedOperator",
	MissingThreshold:     "MissingThreshold",
	NoJoinPath:           "NoJoinPath",
	AmbiguousGrouping:    "AmbiguousGrouping",
	CardinalityViolation: "CardinalityViolation",
	SchemaConflict:       "SchemaConflict",
	InvalidDefinition:    "InvalidDefinition",
	MalformedFilter:      "MalformedFilter",
	MalformedExpression:  "MalformedExpression",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Code returns a stable upper-snake identifier, e.g. UNKNOWN_FIELD.
func (k Kind) Code() string {
	name := k.String()
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Error is a classified error carrying enough context for a user-facing
// message.
type Error struct {
	Kind       Kind
	EntityType string
	Field      string
	// Fragment is the offending token, expression or operator.
	Fragment string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var parts []string
	if e.EntityType != "" {
		parts = append(parts, e.EntityType)
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Fragment != "" && !strings.Contains(msg, e.Fragment) {
		msg = fmt.Sprintf("%s (near %q)", msg, e.Fragment)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, strings.Join(parts, "."), msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithEntity sets the entity type and returns the error for chaining.
func (e *Error) WithEntity(entityType string) *Error {
	e.EntityType = entityType
	return e
}

// WithField sets the field name.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithFragment sets the offending fragment.
func (e *Error) WithFragment(fragment string) *Error {
	e.Fragment = fragment
	return e
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
