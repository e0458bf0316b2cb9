package movies

import (
	"errors"
	"fmt"
)

// Sentinel errors for record validation.
var (
	ErrMissingTitle   = errors.New("missing title")
	ErrDuplicateTitle = errors.New("duplicate title")
)

// RecordError wraps a sentinel with the offending record position.
type RecordError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("record %d: %s: %s (value=%q)", e.Index, e.Field, e.Err, e.Value)
	}
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
