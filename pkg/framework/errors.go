package framework

import (
	"strconv"
	"strings"
)

// AggregatedError collects the failures of a step touching several
// devices, e.g. an event written to both memories.
type AggregatedError struct {
	Errors []error
}

// Error implements error. Errors are joined on one line so a single
// log entry carries all of them.
func (e *AggregatedError) Error() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(len(e.Errors)))
	sb.WriteString(" errors")
	for n, err := range e.Errors {
		if n == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Add collects errs, skipping nil.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		if err != nil {
			e.Errors = append(e.Errors, err)
		}
	}
	return e
}

// Aggregate returns nil without errors, the error itself when there is
// only one, and the AggregatedError otherwise.
func (e *AggregatedError) Aggregate() error {
	switch len(e.Errors) {
	case 0:
		return nil
	case 1:
		return e.Errors[0]
	}
	return e
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *AggregatedError) Unwrap() []error {
	return e.Errors
}
