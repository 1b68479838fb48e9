package config

import (
	"fmt"
	"strings"
)

// FieldError is one invalid configuration key.
type FieldError struct {
	Key    string
	Reason string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

func (e *ValidationErrors) add(key, reason string) {
	e.Fields = append(e.Fields, FieldError{Key: key, Reason: reason})
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s %s\n", f.Key, f.Reason))
	}
	return sb.String()
}

// Keys returns the invalid keys in the order they were found.
func (e *ValidationErrors) Keys() []string {
	keys := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		keys[i] = f.Key
	}
	return keys
}

// lines_of_context is either empty or a pair of non-negative line counts
// (before, after).
func validateLinesOfContext(errs *ValidationErrors, lines []int) {
	if len(lines) == 0 {
		return
	}
	if len(lines) != 2 {
		errs.add("fragments.lines_of_context", fmt.Sprintf("must have 2 values, got %d", len(lines)))
		return
	}
	for _, n := range lines {
		if n < 0 {
			errs.add("fragments.lines_of_context", fmt.Sprintf("must not be negative, got %d", n))
			return
		}
	}
}
