package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrEmptyQuery     = errors.New("search query is empty")
	ErrInvalidProduct = errors.New("invalid product")

	// ErrPersistence matches every *PersistenceError via errors.Is.
	ErrPersistence = errors.New("persistence failed")

	ErrTextProviderRequired = errors.New("text provider is required")
	ErrIndexRequired        = errors.New("vector index is required")
	ErrMessageStoreRequired = errors.New("message store is required")
	ErrProductStoreRequired = errors.New("product store is required")
)

// PersistenceError reports a failed write of the core record. Nothing was
// stored when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
