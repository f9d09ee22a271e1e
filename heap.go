package handleheap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/handleheap/internal/arena"
	"github.com/hupe1980/handleheap/internal/gc"
	"github.com/hupe1980/handleheap/internal/resource"
	"github.com/hupe1980/handleheap/internal/scope"
	"github.com/hupe1980/handleheap/internal/table"
)

// Heap is a fixed-size arena of typed values reached through stable handles.
//
// Locks are always taken in the order arena, table, scope. Operations that
// change the arena or table take both write locks; reads take both read
// locks.
type Heap struct {
	arenaMu sync.RWMutex
	tableMu sync.RWMutex

	arena  *arena.Arena
	table  *table.Table
	scopes *scope.Stack

	collector *gc.Collector
	rc        *resource.Controller
	logger    *Logger
	metrics   MetricsCollector

	// closed is written under both write locks.
	closed bool
}

// New creates a heap backed by an arena of bytes (rounded down to whole
// words) and starts its background collector.
func New(bytes int, optFns ...Option) (*Heap, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}

	rc := o.resourceController
	if rc == nil {
		rc = resource.NewController(resource.Config{MemoryLimitBytes: o.memoryLimit})
	}

	a, err := arena.New(bytes, arena.WithMemoryAcquirer(rc))
	if err != nil {
		return nil, translateError(err)
	}
	t, err := table.New(o.tableSize)
	if err != nil {
		_ = a.Release()
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	s, err := scope.New(o.scopeDepth)
	if err != nil {
		_ = a.Release()
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	h := &Heap{
		arena:   a,
		table:   t,
		scopes:  s,
		rc:      rc,
		logger:  o.logger,
		metrics: o.metricsCollector,
	}
	h.collector = gc.New(a, t, &h.arenaMu, &h.tableMu,
		gc.WithInterval(o.collectInterval),
		gc.WithThreshold(o.compactionThreshold),
		gc.WithLogger(o.logger.Logger),
		gc.WithObserver(collectObserver{h}),
		gc.WithResourceController(rc),
	)
	h.collector.Start()

	h.logger.Info("heap created",
		"words", a.Len(),
		"table_size", o.tableSize,
		"scope_depth", o.scopeDepth,
		"collect_interval", o.collectInterval,
	)
	return h, nil
}

// InitScope opens a scope. Handles created until the matching EndScope are
// rooted by it.
func (h *Heap) InitScope() error {
	h.tableMu.RLock()
	defer h.tableMu.RUnlock()

	if err := h.usable(); err != nil {
		return err
	}
	return translateError(h.scopes.Open())
}

// EndScope closes the innermost scope and unroots every handle created in
// it. Nothing is freed until the next collection cycle.
func (h *Heap) EndScope() error {
	h.tableMu.Lock()
	defer h.tableMu.Unlock()

	if err := h.usable(); err != nil {
		return err
	}
	slots, err := h.scopes.Close()
	if err != nil {
		return translateError(err)
	}
	for _, s := range slots {
		h.table.Unmark(s)
	}
	return nil
}

// CreateVar allocates a single element of type t in the current scope.
func (h *Heap) CreateVar(t ElemType) (Handle, error) {
	return h.create(KindVar, t, 1)
}

// CreateArr allocates length elements of type t in the current scope.
func (h *Heap) CreateArr(t ElemType, length int) (Handle, error) {
	return h.create(KindArr, t, length)
}

func (h *Heap) create(kind Kind, t ElemType, length int) (Handle, error) {
	start := time.Now()
	words := 0
	if t.Valid() && length > 0 {
		words = t.wordsFor(length)
	}

	hd, err := h.createLocked(kind, t, length, words)

	h.metrics.RecordCreate(words, time.Since(start), err)
	h.logger.LogCreate(context.Background(), kind, t, length, err)
	return hd, err
}

func (h *Heap) createLocked(kind Kind, t ElemType, length, words int) (Handle, error) {
	if !t.Valid() {
		return Handle{}, fmt.Errorf("%w: element type %s", ErrInvalidArgument, t)
	}
	if length <= 0 {
		return Handle{}, fmt.Errorf("%w: length %d", ErrInvalidArgument, length)
	}

	h.arenaMu.Lock()
	defer h.arenaMu.Unlock()
	h.tableMu.Lock()
	defer h.tableMu.Unlock()
	defer h.collector.Trap()

	if err := h.usable(); err != nil {
		return Handle{}, err
	}
	if h.scopes.Depth() == 0 {
		return Handle{}, ErrNoScope
	}

	off, err := h.arena.Alloc(words)
	if errors.Is(err, arena.ErrNoFreeBlock) && h.arena.Stats().FreeWords >= words+arena.TagWords {
		// Enough free words exist, just not in one block.
		if _, cerr := h.collector.CompactLocked(); cerr != nil {
			return Handle{}, translateError(cerr)
		}
		off, err = h.arena.Alloc(words)
	}
	if err != nil {
		return Handle{}, translateError(err)
	}

	slot, err := h.table.Insert(off)
	if err != nil {
		h.arena.Free(off)
		return Handle{}, translateError(err)
	}

	var hd Handle
	s, err := h.table.Get(slot)
	if err == nil {
		hd, err = newHandle(slot, s.Gen, kind, t, length)
	}
	if err == nil {
		err = h.scopes.Push(slot)
	}
	if err != nil {
		_ = h.table.Remove(slot)
		h.arena.Free(off)
		return Handle{}, translateError(err)
	}
	return hd, nil
}

// Free releases hd immediately, whether or not its scope has ended.
// Freeing a handle twice returns ErrAlreadyFreed, even after its slot has
// been reused by another handle.
func (h *Heap) Free(hd Handle) error {
	err := h.free(hd)
	h.metrics.RecordFree(err)
	h.logger.LogFree(context.Background(), hd, err)
	return err
}

func (h *Heap) free(hd Handle) error {
	slot, err := hd.anySlot()
	if err != nil {
		return err
	}

	h.arenaMu.Lock()
	defer h.arenaMu.Unlock()
	h.tableMu.Lock()
	defer h.tableMu.Unlock()
	defer h.collector.Trap()

	if err := h.usable(); err != nil {
		return err
	}

	s, err := h.table.Get(slot)
	if err != nil {
		return translateError(err)
	}
	if !s.Valid || s.Gen != hd.gen() {
		// The slot may hold a newer handle; leave it alone.
		return fmt.Errorf("%w: %s", ErrAlreadyFreed, hd)
	}

	h.arena.Free(s.Offset)
	if err := h.table.Remove(slot); err != nil {
		return translateError(err)
	}
	h.scopes.Forget(slot)
	return nil
}

// CollectResult describes one collection cycle.
type CollectResult struct {
	Swept     []uint32 // Table slots reclaimed, ascending
	Ratio     float64  // Fragmentation ratio after the sweep
	Compacted bool
	Moved     int // Blocks moved by compaction
	Duration  time.Duration
}

// Collect runs one collection cycle synchronously: every handle whose scope
// has ended is freed, and the arena is compacted if it is fragmented past
// the configured threshold.
func (h *Heap) Collect(ctx context.Context) (CollectResult, error) {
	if err := h.ready(); err != nil {
		return CollectResult{}, err
	}

	res, err := h.collector.Collect(ctx)
	if err != nil {
		return CollectResult{}, translateError(err)
	}
	return CollectResult{
		Swept:     res.Swept.ToArray(),
		Ratio:     res.Ratio,
		Compacted: res.Compacted,
		Moved:     res.Moved,
		Duration:  res.Duration,
	}, nil
}

// Wake asks the background collector for a cycle and returns without
// waiting for it.
func (h *Heap) Wake() {
	h.collector.Wake()
}

// usable reports why the heap cannot serve a call. The caller holds the
// table lock.
func (h *Heap) usable() error {
	if h.closed {
		return ErrClosed
	}
	return translateError(h.collector.Err())
}

func (h *Heap) ready() error {
	h.tableMu.RLock()
	defer h.tableMu.RUnlock()
	return h.usable()
}

type collectObserver struct {
	h *Heap
}

func (o collectObserver) OnCollect(res gc.Result) {
	o.h.metrics.RecordCollect(res.Count(), res.Compacted, res.Duration)
	o.h.logger.LogCollect(context.Background(), res.Count(), res.Compacted, res.Moved, res.Duration)
}
