package mmap

import "errors"

// AccessPattern tells the kernel how the arena is about to be touched.
type AccessPattern int

const (
	// AccessDefault drops any earlier hint.
	AccessDefault AccessPattern = iota
	// AccessSequential suits whole-arena walks such as compaction.
	AccessSequential
	// AccessRandom suits handle lookups between compactions.
	AccessRandom
)

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the requested size is not positive.
	ErrInvalidSize = errors.New("mmap: invalid size")
)
