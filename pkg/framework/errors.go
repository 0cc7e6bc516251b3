package framework

import "strings"

// AggregatedError collects errors from multiple runners.
type AggregatedError []error

// Error implements error.
func (e AggregatedError) Error() string {
	msg := make([]string, 0, len(e)+1)
	msg = append(msg, "Multiple errors:")
	for _, err := range e {
		msg = append(msg, err.Error())
	}
	return strings.Join(msg, "\n")
}

// Add appends errors, skipping nils.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		if err != nil {
			*e = append(*e, err)
		}
	}
	return e
}

// Aggregate returns nil when no error was added, the sole error when
// exactly one was, and the aggregate otherwise.
func (e AggregatedError) Aggregate() error {
	switch len(e) {
	case 0:
		return nil
	case 1:
		return e[0]
	}
	return e
}
