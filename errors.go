package handleheap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/handleheap/internal/arena"
	"github.com/hupe1980/handleheap/internal/gc"
	"github.com/hupe1980/handleheap/internal/resource"
	"github.com/hupe1980/handleheap/internal/scope"
	"github.com/hupe1980/handleheap/internal/table"
)

// Capacity errors. The heap is unchanged when one is returned.
var (
	// ErrOutOfMemory is returned when no free block can hold a request, even
	// after compaction.
	ErrOutOfMemory = errors.New("no free block in memory")
	// ErrTableFull is returned when every handle slot is in use.
	ErrTableFull = errors.New("handle table full")
	// ErrScopeOverflow is returned when the scope stack is full.
	ErrScopeOverflow = errors.New("scope stack overflow")
	// ErrScopeUnderflow is returned by EndScope without a matching InitScope.
	ErrScopeUnderflow = errors.New("scope stack underflow")
	// ErrCapacity is returned when backing memory cannot be reserved or the
	// memory limit would be exceeded.
	ErrCapacity = errors.New("cannot reserve backing memory")
)

// Usage errors.
var (
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrKindMismatch    = errors.New("kind mismatch")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrInvalidHandle   = errors.New("invalid handle")
	ErrAlreadyFreed    = errors.New("handle already freed")
	ErrNoScope         = errors.New("no open scope")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClosed          = errors.New("heap closed")
)

// ErrCorrupted is returned by every method once a boundary-tag corruption
// has been detected. Only Close remains useful.
var ErrCorrupted = errors.New("heap corrupted")

// TypeMismatchError reports a value whose element type differs from the
// handle's.
//
// errors.Is(err, ErrTypeMismatch) holds for every TypeMismatchError.
type TypeMismatchError struct {
	Expected ElemType
	Actual   ElemType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: handle holds %s, got %s", e.Expected, e.Actual)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// IndexError reports an array index outside [0, Len).
//
// errors.Is(err, ErrIndexOutOfRange) holds for every IndexError.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index out of range: %d not in [0, %d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gc.ErrFaulted) {
		return fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	// Arena
	if errors.Is(err, arena.ErrNoFreeBlock) {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	if errors.Is(err, arena.ErrCapacity) || errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrCapacity, err)
	}
	if errors.Is(err, arena.ErrReleased) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	// Table
	if errors.Is(err, table.ErrFull) {
		return fmt.Errorf("%w: %w", ErrTableFull, err)
	}
	if errors.Is(err, table.ErrAlreadyFree) {
		return fmt.Errorf("%w: %w", ErrAlreadyFreed, err)
	}
	if errors.Is(err, table.ErrOutOfRange) {
		return fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}

	// Scope
	if errors.Is(err, scope.ErrOverflow) {
		return fmt.Errorf("%w: %w", ErrScopeOverflow, err)
	}
	if errors.Is(err, scope.ErrUnderflow) {
		return fmt.Errorf("%w: %w", ErrScopeUnderflow, err)
	}
	if errors.Is(err, scope.ErrNoScope) {
		return fmt.Errorf("%w: %w", ErrNoScope, err)
	}

	return err
}
