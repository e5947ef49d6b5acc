package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Handlers match on these with errors.Is to pick a
// response status.
var (
	ErrValidation  = errors.New("validation failed")
	ErrDuplicateID = errors.New("duplicate chunk id")
	ErrNotFound    = errors.New("not found")
)

// ValidationError wraps ErrValidation with the offending field and batch
// position.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chunk[%d]: field %q: %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DuplicateIDError wraps ErrDuplicateID, naming the id that appeared more
// than once in a single upload batch.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate chunk id found in upload batch: %s", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }
