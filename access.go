package handleheap

import (
	"context"
	"fmt"
)

// AssignVar stores v in the variable hd.
func (h *Heap) AssignVar(hd Handle, v Value) error {
	return h.write(hd, KindVar, 0, []Value{v})
}

// AssignArr stores v at index i of the array hd.
func (h *Heap) AssignArr(hd Handle, i int, v Value) error {
	return h.write(hd, KindArr, i, []Value{v})
}

// AssignAll stores vs at indexes 0 to len(vs)-1 of the array hd. Nothing is
// written unless every value matches the element type.
func (h *Heap) AssignAll(hd Handle, vs []Value) error {
	return h.write(hd, KindArr, 0, vs)
}

// ReadVar returns the value of the variable hd.
func (h *Heap) ReadVar(hd Handle) (Value, error) {
	var dst [1]Value
	if _, err := h.read(hd, KindVar, 0, dst[:]); err != nil {
		return Value{}, err
	}
	return dst[0], nil
}

// ReadArr returns element i of the array hd.
func (h *Heap) ReadArr(hd Handle, i int) (Value, error) {
	var dst [1]Value
	if _, err := h.read(hd, KindArr, i, dst[:]); err != nil {
		return Value{}, err
	}
	return dst[0], nil
}

// ReadAll copies elements of the array hd into dst, starting at index 0,
// and returns how many were copied: the smaller of len(dst) and hd.Len().
func (h *Heap) ReadAll(hd Handle, dst []Value) (int, error) {
	return h.read(hd, KindArr, 0, dst[:min(len(dst), hd.length)])
}

// check validates hd for an access of n elements starting at index at and
// returns its table slot.
func check(hd Handle, want Kind, at, n int) (int, error) {
	slot, err := hd.slot(want)
	if err != nil {
		return 0, err
	}
	if at < 0 || at >= hd.length {
		return 0, &IndexError{Index: at, Len: hd.length}
	}
	if at+n > hd.length {
		return 0, &IndexError{Index: at + n - 1, Len: hd.length}
	}
	return slot, nil
}

// resolve returns the payload behind slot. The caller holds both locks.
func (h *Heap) resolve(hd Handle, slot int) ([]uint64, error) {
	if err := h.usable(); err != nil {
		return nil, err
	}

	s, err := h.table.Get(slot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	if !s.Valid || s.Gen != hd.gen() {
		return nil, fmt.Errorf("%w: %s is freed", ErrInvalidHandle, hd)
	}
	payload := h.arena.Payload(s.Offset)
	if len(payload) < hd.elem.wordsFor(hd.length) {
		return nil, fmt.Errorf("%w: %s does not fit its block", ErrInvalidHandle, hd)
	}
	return payload, nil
}

func (h *Heap) write(hd Handle, want Kind, at int, vs []Value) error {
	slot, err := check(hd, want, at, len(vs))
	if err != nil {
		return err
	}
	for _, v := range vs {
		if v.Type != hd.elem {
			return &TypeMismatchError{Expected: hd.elem, Actual: v.Type}
		}
	}

	h.arenaMu.Lock()
	defer h.arenaMu.Unlock()
	h.tableMu.Lock()
	defer h.tableMu.Unlock()
	defer h.collector.Trap()

	payload, err := h.resolve(hd, slot)
	if err != nil {
		return err
	}

	for i, v := range vs {
		raw, narrowed := v.encode()
		if narrowed {
			h.narrowing(hd, at+i, v)
		}
		store(payload, hd.elem, at+i, raw)
	}
	return nil
}

func (h *Heap) read(hd Handle, want Kind, at int, dst []Value) (int, error) {
	slot, err := check(hd, want, at, len(dst))
	if err != nil {
		return 0, err
	}

	h.arenaMu.RLock()
	defer h.arenaMu.RUnlock()
	h.tableMu.RLock()
	defer h.tableMu.RUnlock()

	payload, err := h.resolve(hd, slot)
	if err != nil {
		return 0, err
	}

	for i := range dst {
		dst[i] = decode(hd.elem, load(payload, hd.elem, at+i))
	}
	return len(dst), nil
}

func (h *Heap) narrowing(hd Handle, i int, v Value) {
	h.metrics.RecordNarrowing()
	if h.rc.AllowWarning() {
		h.logger.LogNarrowing(context.Background(), hd, i, int64(v.Int24()))
	}
}
