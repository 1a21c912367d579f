package request

import (
	"fmt"
	"strings"
)

// Kind classifies a validation failure.
type Kind string

const (
	KindNotANumber       Kind = "not_a_number"
	KindInvalidTimestamp Kind = "invalid_timestamp"
	KindDegenerateBox    Kind = "degenerate_box"
	KindInvertedBox      Kind = "inverted_box"
	KindOutOfRange       Kind = "out_of_range"
	KindInvalidTimeRange Kind = "invalid_time_range"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field string
	Kind  Kind
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Kind, e.Err)
	}
	if e.Value != "" {
		return fmt.Sprintf("%s: %s %q", e.Field, e.Kind, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Kind)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidationErrors collects every failure found by Build.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Has reports whether any collected failure is of kind k.
func (v ValidationErrors) Has(k Kind) bool {
	for _, e := range v {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Unwrap exposes the individual errors to errors.Is/As.
func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v))
	for _, e := range v {
		out = append(out, e)
	}
	return out
}
