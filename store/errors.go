// Package store implements the durable local content store backing
// LookerVault: content blobs with searchable metadata, checkpoints,
// sessions, ID mappings, and the dead-letter queue, all in one SQLite
// file exclusively owned by the Store.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for store failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBusy indicates the write lock could not be acquired within the
	// busy timeout.
	ErrBusy = errors.New("database busy")

	// ErrCorrupt indicates the backing file failed an integrity check.
	ErrCorrupt = errors.New("database corrupt")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("store closed")
)

// StorageError wraps an underlying error with store classification.
// It preserves the original error in the chain for errors.As inspection.
type StorageError struct {
	// Kind is the sentinel error for classification, when known.
	Kind error
	// Op is the operation that failed (e.g. "put_content").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("store: %s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// wrapErr classifies and wraps a store operation error.
// Returns nil if err is nil; sentinel errors pass through unclassified.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Kind: classify(err), Op: op, Err: err}
}

func classify(err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "database is locked", "busy"):
		return ErrBusy
	case containsAny(msg, "malformed", "corrupt", "not a database"):
		return ErrCorrupt
	case containsAny(msg, "database is closed"):
		return ErrClosed
	default:
		return nil
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
