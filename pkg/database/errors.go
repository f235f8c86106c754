package database

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks any failed read or write against a store.
// Operations surface it as-is; retry policy belongs to the caller.
var ErrStoreUnavailable = errors.New("store unavailable")

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// Unavailable wraps err as a StoreError for op. nil stays nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
