package scope

import (
	"errors"
	"fmt"
	"sync"
)

const (
	marker    = -1
	tombstone = -2
)

var (
	// ErrOverflow is returned when the stack has no room for another entry.
	ErrOverflow = errors.New("scope stack overflow")
	// ErrUnderflow is returned by Close when no scope is open.
	ErrUnderflow = errors.New("scope stack underflow")
	// ErrNoScope is returned by Push when no scope is open.
	ErrNoScope = errors.New("no open scope")
)

// Stack is a fixed-depth stack of scope markers and rooted slot indexes.
type Stack struct {
	mu      sync.Mutex
	entries []int
	open    int
}

// New returns a stack holding at most depth entries, markers included.
func New(depth int) (*Stack, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("scope: invalid depth %d", depth)
	}
	return &Stack{entries: make([]int, 0, depth)}, nil
}

// Open starts a new scope.
func (s *Stack) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == cap(s.entries) {
		return ErrOverflow
	}
	s.entries = append(s.entries, marker)
	s.open++
	return nil
}

// Push roots slot in the innermost open scope.
func (s *Stack) Push(slot int) error {
	if slot < 0 {
		return fmt.Errorf("scope: invalid slot %d", slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == 0 {
		return ErrNoScope
	}
	if len(s.entries) == cap(s.entries) {
		return ErrOverflow
	}
	s.entries = append(s.entries, slot)
	return nil
}

// Close ends the innermost scope and returns the slots it still roots, most
// recent first.
func (s *Stack) Close() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == 0 {
		return nil, ErrUnderflow
	}

	var slots []int
	i := len(s.entries) - 1
	for ; s.entries[i] != marker; i-- {
		if v := s.entries[i]; v >= 0 {
			slots = append(slots, v)
		}
	}
	s.entries = s.entries[:i]
	s.open--

	return slots, nil
}

// Forget tombstones every entry for slot. It reports whether one was found.
func (s *Stack) Forget(slot int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i] == slot {
			s.entries[i] = tombstone
			found = true
		}
	}
	return found
}

// Scopes returns the slots rooted by each open scope, outermost first.
// Forgotten slots are left out.
func (s *Stack) Scopes() [][]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]int, 0, s.open)
	for _, v := range s.entries {
		switch {
		case v == marker:
			out = append(out, []int{})
		case v >= 0:
			out[len(out)-1] = append(out[len(out)-1], v)
		}
	}
	return out
}

// Depth returns the number of open scopes.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Len returns the number of entries, markers and tombstones included.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cap returns the maximum number of entries.
func (s *Stack) Cap() int {
	return cap(s.entries)
}
