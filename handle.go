package handleheap

import (
	"fmt"

	"github.com/hupe1980/handleheap/internal/conv"
)

// ElemType is the element type of a handle's storage.
type ElemType uint8

const (
	Char   ElemType = iota + 1 // 8-bit character
	Bool                       // 8-bit boolean
	Int                        // 32-bit signed integer
	Int24                      // 24-bit signed integer, two per word
	Long                       // 64-bit signed integer
	Float                      // 32-bit IEEE 754
	Double                     // 64-bit IEEE 754
)

// Bits returns the stored width of one element.
func (t ElemType) Bits() int {
	switch t {
	case Char, Bool:
		return 8
	case Int24:
		return 24
	case Int, Float:
		return 32
	case Long, Double:
		return 64
	default:
		return 0
	}
}

// Valid reports whether t is a known element type.
func (t ElemType) Valid() bool {
	return t.Bits() != 0
}

func (t ElemType) String() string {
	switch t {
	case Char:
		return "char"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Int24:
		return "int24"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("ElemType(%d)", uint8(t))
	}
}

// perWord is the number of elements packed into one 64-bit word.
func (t ElemType) perWord() int {
	return 64 / t.Bits()
}

func (t ElemType) mask() uint64 {
	if t.Bits() == 64 {
		return ^uint64(0)
	}
	return 1<<t.Bits() - 1
}

// wordsFor returns the payload words needed for n elements.
func (t ElemType) wordsFor(n int) int {
	per := t.perWord()
	return (n + per - 1) / per
}

// Kind distinguishes single variables from arrays. The kind is encoded in
// the two low bits of a handle id.
//
// A handle id is laid out as gen<<32 | slot<<2 | kind, where gen is the
// table slot's generation when the handle was created.
type Kind uint8

const (
	KindVar Kind = 1
	KindArr Kind = 2

	kindBits = 2
	kindMask = 1<<kindBits - 1

	genShift = 32
	slotMask = 1<<genShift - 1
)

func (k Kind) String() string {
	switch k {
	case KindVar:
		return "var"
	case KindArr:
		return "arr"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Handle is an immutable reference to a value or array in a Heap. Handles
// stay valid across compaction; they are invalidated by Free or by the
// collector once the scope that created them has ended.
//
// The zero Handle is invalid.
type Handle struct {
	id     uint64
	elem   ElemType
	length int
}

// ID returns the handle id: the slot generation in the high 32 bits, then
// the table slot shifted left by two, with the kind in the low bits.
func (h Handle) ID() uint64 { return h.id }

// Kind returns whether h refers to a variable or an array.
func (h Handle) Kind() Kind { return Kind(h.id & kindMask) }

// Type returns the element type.
func (h Handle) Type() ElemType { return h.elem }

// Len returns the number of elements: 1 for a variable.
func (h Handle) Len() int { return h.length }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string {
	if h.Kind() == KindArr {
		return fmt.Sprintf("Handle{%d %s[%d]}", h.id, h.elem, h.length)
	}
	return fmt.Sprintf("Handle{%d %s}", h.id, h.elem)
}

func newHandle(slot int, gen uint32, kind Kind, t ElemType, length int) (Handle, error) {
	s, err := conv.IntToUint64(slot)
	if err != nil {
		return Handle{}, err
	}
	if s >= MaxTableSize {
		return Handle{}, fmt.Errorf("slot %d: %w", slot, conv.ErrOverflow)
	}
	id := uint64(gen)<<genShift | s<<kindBits | uint64(kind)
	return Handle{id: id, elem: t, length: length}, nil
}

// gen returns the slot generation h was created with.
func (h Handle) gen() uint32 {
	return uint32(h.id >> genShift) //nolint:gosec // high 32 bits
}

// slot checks h against the kind an operation expects and returns its table
// slot.
func (h Handle) slot(want Kind) (int, error) {
	switch k := h.Kind(); {
	case k != KindVar && k != KindArr, !h.elem.Valid(), h.length <= 0:
		return 0, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	case k != want:
		return 0, fmt.Errorf("%w: %s used as %s", ErrKindMismatch, k, want)
	}
	s, err := conv.Uint64ToInt((h.id & slotMask) >> kindBits)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	return s, nil
}

// anySlot is slot for operations that accept both kinds.
func (h Handle) anySlot() (int, error) {
	return h.slot(h.Kind())
}

// load returns element i of a payload.
func load(payload []uint64, t ElemType, i int) uint64 {
	per := t.perWord()
	shift := uint(i%per) * uint(t.Bits()) //nolint:gosec // small non-negative values
	return payload[i/per] >> shift & t.mask()
}

// store writes raw, already masked to the element width, into element i.
func store(payload []uint64, t ElemType, i int, raw uint64) {
	per := t.perWord()
	shift := uint(i%per) * uint(t.Bits()) //nolint:gosec // small non-negative values
	w := &payload[i/per]
	*w = *w&^(t.mask()<<shift) | raw<<shift
}
