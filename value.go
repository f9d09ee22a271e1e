package handleheap

import (
	"fmt"
	"math"
)

const (
	minInt24 = -1 << 23
	maxInt24 = 1<<23 - 1
)

// Value is a tagged element value. Build one with the constructor for its
// type and read it back with the matching accessor; accessors of other
// types reinterpret the bits.
type Value struct {
	Type ElemType
	bits uint64
}

// CharValue returns a Char value.
func CharValue(c byte) Value { return Value{Type: Char, bits: uint64(c)} }

// BoolValue returns a Bool value.
func BoolValue(b bool) Value {
	v := Value{Type: Bool}
	if b {
		v.bits = 1
	}
	return v
}

// IntValue returns an Int value.
func IntValue(i int32) Value { return Value{Type: Int, bits: uint64(uint32(i))} } //nolint:gosec // bit reinterpretation

// Int24Value returns an Int24 value. Values outside [-2^23, 2^23) are
// accepted here and truncated to 24 bits when written to a heap.
func Int24Value(i int32) Value { return Value{Type: Int24, bits: uint64(int64(i))} } //nolint:gosec // bit reinterpretation

// LongValue returns a Long value.
func LongValue(i int64) Value { return Value{Type: Long, bits: uint64(i)} } //nolint:gosec // bit reinterpretation

// FloatValue returns a Float value.
func FloatValue(f float32) Value { return Value{Type: Float, bits: uint64(math.Float32bits(f))} }

// DoubleValue returns a Double value.
func DoubleValue(f float64) Value { return Value{Type: Double, bits: math.Float64bits(f)} }

// Char returns the value as a byte.
func (v Value) Char() byte { return byte(v.bits) }

// Bool returns the value as a bool.
func (v Value) Bool() bool { return v.bits != 0 }

// Int returns the value as an int32.
func (v Value) Int() int32 { return int32(uint32(v.bits)) } //nolint:gosec // bit reinterpretation

// Int24 returns the value as a sign-extended int32.
func (v Value) Int24() int32 { return int32(int64(v.bits)) } //nolint:gosec // bit reinterpretation

// Long returns the value as an int64.
func (v Value) Long() int64 { return int64(v.bits) } //nolint:gosec // bit reinterpretation

// Float returns the value as a float32.
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) } //nolint:gosec // low 32 bits

// Double returns the value as a float64.
func (v Value) Double() float64 { return math.Float64frombits(v.bits) }

// Any returns the value as the Go type matching its element type.
func (v Value) Any() any {
	switch v.Type {
	case Char:
		return v.Char()
	case Bool:
		return v.Bool()
	case Int:
		return v.Int()
	case Int24:
		return v.Int24()
	case Long:
		return v.Long()
	case Float:
		return v.Float()
	case Double:
		return v.Double()
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.Type == Char {
		return fmt.Sprintf("%s(%q)", v.Type, v.Char())
	}
	return fmt.Sprintf("%s(%v)", v.Type, v.Any())
}

// encode returns the stored bits of v and whether it had to be narrowed.
func (v Value) encode() (raw uint64, narrowed bool) {
	if v.Type == Int24 {
		i := int64(v.bits) //nolint:gosec // bit reinterpretation
		narrowed = i < minInt24 || i > maxInt24
	}
	return v.bits & v.Type.mask(), narrowed
}

// decode builds a Value from stored bits, sign-extending Int24.
func decode(t ElemType, raw uint64) Value {
	if t == Int24 {
		return Value{Type: t, bits: uint64(int64(raw<<40) >> 40)} //nolint:gosec // sign extension
	}
	return Value{Type: t, bits: raw}
}
