package handleheap

// Close stops the background collector and releases the arena's backing
// memory. Handles are unusable afterwards; every method returns ErrClosed.
// Close is idempotent.
func (h *Heap) Close() error {
	if h == nil {
		return nil
	}

	h.collector.Stop()

	h.arenaMu.Lock()
	defer h.arenaMu.Unlock()
	h.tableMu.Lock()
	defer h.tableMu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	err := h.arena.Release()
	h.logger.Info("heap closed", "live_handles", h.table.Len())
	return translateError(err)
}
