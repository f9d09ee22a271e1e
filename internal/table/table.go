package table

import (
	"errors"
	"fmt"
)

const end = -1

var (
	// ErrFull is returned by Insert when every slot is in use.
	ErrFull = errors.New("handle table full")
	// ErrAlreadyFree is returned by Remove for a slot that is not valid.
	ErrAlreadyFree = errors.New("slot already free")
	// ErrOutOfRange is returned for an index outside [0, Cap()).
	ErrOutOfRange = errors.New("slot index out of range")
)

// Slot is one table entry. Valid implies Offset is the header of an
// allocated arena block. For an invalid slot Offset links the free list.
// Gen counts how many times the slot has been removed, so references
// taken before a reuse can be told apart from the current occupant.
type Slot struct {
	Offset int
	Gen    uint32
	Valid  bool
	Marked bool
}

// Table is a fixed-capacity indirection table.
type Table struct {
	slots []Slot
	head  int
	tail  int
	live  int
}

// New returns a table of n slots, all free, linked in index order.
func New(n int) (*Table, error) {
	if n <= 0 {
		return nil, fmt.Errorf("table: invalid size %d", n)
	}

	t := &Table{
		slots: make([]Slot, n),
		head:  0,
		tail:  n - 1,
	}
	for i := range t.slots {
		t.slots[i].Offset = i + 1
	}
	t.slots[n-1].Offset = end

	return t, nil
}

// Insert takes the free-list head, points it at offset and marks it live.
func (t *Table) Insert(offset int) (int, error) {
	if t.head == end {
		return 0, ErrFull
	}

	idx := t.head
	s := &t.slots[idx]
	t.head = s.Offset
	if t.head == end {
		t.tail = end
	}

	*s = Slot{Offset: offset, Gen: s.Gen, Valid: true, Marked: true}
	t.live++

	return idx, nil
}

// Remove invalidates slot idx, bumps its generation and appends it to the
// free list.
func (t *Table) Remove(idx int) error {
	if idx < 0 || idx >= len(t.slots) {
		return ErrOutOfRange
	}
	s := &t.slots[idx]
	if !s.Valid {
		return ErrAlreadyFree
	}

	*s = Slot{Offset: end, Gen: s.Gen + 1}
	if t.tail == end {
		t.head = idx
	} else {
		t.slots[t.tail].Offset = idx
	}
	t.tail = idx
	t.live--

	return nil
}

// Get returns a copy of slot idx.
func (t *Table) Get(idx int) (Slot, error) {
	if idx < 0 || idx >= len(t.slots) {
		return Slot{}, ErrOutOfRange
	}
	return t.slots[idx], nil
}

// Lookup returns the block offset of a valid slot.
func (t *Table) Lookup(idx int) (int, bool) {
	if idx < 0 || idx >= len(t.slots) || !t.slots[idx].Valid {
		return 0, false
	}
	return t.slots[idx].Offset, true
}

// Unmark clears the root mark of idx. Invalid or out of range slots are
// ignored; a scope may outlive the handles it rooted.
func (t *Table) Unmark(idx int) {
	if idx < 0 || idx >= len(t.slots) {
		return
	}
	if s := &t.slots[idx]; s.Valid {
		s.Marked = false
	}
}

// Garbage reports whether slot idx is live but no longer rooted.
func (t *Table) Garbage(idx int) bool {
	s := t.slots[idx]
	return s.Valid && !s.Marked
}

// Relocate rewrites the offset of every valid slot through fn.
func (t *Table) Relocate(fn func(offset int) (int, error)) error {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.Valid {
			continue
		}
		to, err := fn(s.Offset)
		if err != nil {
			return fmt.Errorf("table: relocate slot %d: %w", i, err)
		}
		s.Offset = to
	}
	return nil
}

// Len returns the number of valid slots.
func (t *Table) Len() int { return t.live }

// Cap returns the fixed number of slots.
func (t *Table) Cap() int { return len(t.slots) }
