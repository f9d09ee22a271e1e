package handleheap

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Dump writes the arena counters, every live handle slot and the open
// scopes to w. It is meant for debugging and holds both read locks while
// rendering.
func (h *Heap) Dump(w io.Writer) error {
	h.arenaMu.RLock()
	defer h.arenaMu.RUnlock()
	h.tableMu.RLock()
	defer h.tableMu.RUnlock()

	if err := h.usable(); err != nil {
		return err
	}

	as := h.arena.Stats()
	fmt.Fprintf(w, "Arena: %d words, %d free in %d blocks, max free hint %d, %d compactions\n",
		as.Words, as.FreeWords, as.FreeBlocks, as.MaxFreeHint, as.Compactions)

	fmt.Fprintf(w, "Handle table: %d/%d slots live\n", h.table.Len(), h.table.Cap())
	slots := tablewriter.NewWriter(w)
	slots.SetHeader([]string{"Slot", "Offset", "Words", "Gen", "Marked"})
	for i := range h.table.Cap() {
		s, err := h.table.Get(i)
		if err != nil {
			return translateError(err)
		}
		if !s.Valid {
			continue
		}
		n, err := h.arena.BlockWords(s.Offset)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		slots.Append([]string{
			strconv.Itoa(i),
			strconv.Itoa(s.Offset),
			strconv.Itoa(n),
			strconv.FormatUint(uint64(s.Gen), 10),
			strconv.FormatBool(s.Marked),
		})
	}
	slots.Render()

	scopes := h.scopes.Scopes()
	fmt.Fprintf(w, "Scope stack: %d open, %d/%d entries\n", len(scopes), h.scopes.Len(), h.scopes.Cap())
	st := tablewriter.NewWriter(w)
	st.SetHeader([]string{"Depth", "Rooted slots"})
	for d, roots := range scopes {
		ids := make([]string, len(roots))
		for i, r := range roots {
			ids[i] = strconv.Itoa(r)
		}
		st.Append([]string{strconv.Itoa(d + 1), strings.Join(ids, " ")})
	}
	st.Render()

	return nil
}
