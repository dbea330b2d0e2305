package draft

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned when a row index does not exist.
	ErrIndexOutOfRange = errors.New("row index out of range")
	// ErrLastRow is returned when removing the only anomaly row.
	ErrLastRow = errors.New("a report keeps at least one anomaly row")
	// ErrUnknownMachine is returned for a heavy tag missing from the catalog.
	ErrUnknownMachine = errors.New("machine not in heavy catalog")
)

// ValidationError is raised before any network call; the draft is kept.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// SubmitError wraps a backend failure on create or update; the draft is kept.
type SubmitError struct {
	Update bool
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Update {
		return fmt.Sprintf("update report: %v", e.Err)
	}
	return fmt.Sprintf("create report: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
