package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/handleheap/internal/arena"
	"github.com/hupe1980/handleheap/internal/conv"
	"github.com/hupe1980/handleheap/internal/resource"
	"github.com/hupe1980/handleheap/internal/table"
)

const (
	// DefaultInterval is the period of background collection.
	DefaultInterval = 100 * time.Millisecond
	// DefaultThreshold is the fragmentation ratio that triggers compaction.
	DefaultThreshold = 2.0
)

// ErrFaulted is returned once a cycle or an arena update under Trap has
// panicked. The arena may be half rewritten and is not walked again.
var ErrFaulted = errors.New("gc: arena corrupted")

// Result describes one collection cycle.
type Result struct {
	Swept     *roaring.Bitmap // Slot indexes freed by the sweep
	Ratio     float64         // Fragmentation ratio after the sweep
	Compacted bool
	Moved     int // Blocks moved by compaction
	Duration  time.Duration
}

// Count returns the number of swept slots.
func (r Result) Count() int {
	if r.Swept == nil {
		return 0
	}
	return int(r.Swept.GetCardinality()) //nolint:gosec // bounded by table size
}

// Observer is notified after every completed cycle.
type Observer interface {
	OnCollect(Result)
}

type noopObserver struct{}

func (noopObserver) OnCollect(Result) {}

// Option configures a Collector.
type Option func(*Collector)

// WithInterval sets the background collection period. Zero disables the
// ticker; the loop then only runs on Wake.
func WithInterval(d time.Duration) Option {
	return func(c *Collector) {
		c.interval = d
	}
}

// WithThreshold sets the fragmentation ratio that triggers compaction.
func WithThreshold(ratio float64) Option {
	return func(c *Collector) {
		c.threshold = ratio
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets the cycle observer.
func WithObserver(o Observer) Option {
	return func(c *Collector) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithResourceController bounds how many cycles run at once.
func WithResourceController(rc *resource.Controller) Option {
	return func(c *Collector) {
		c.rc = rc
	}
}

// Collector sweeps unrooted slots and compacts the arena.
//
// arenaMu guards the arena and tableMu guards the table. They are always
// taken in that order.
type Collector struct {
	arena   *arena.Arena
	table   *table.Table
	arenaMu sync.Locker
	tableMu sync.Locker

	interval  time.Duration
	threshold float64
	logger    *slog.Logger
	observer  Observer
	rc        *resource.Controller

	fault atomic.Pointer[error]

	ctx       context.Context
	cancel    context.CancelFunc
	wakeCh    chan struct{}
	closeCh   chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns a collector over a and t. The locks must be the ones every
// other user of a and t takes.
func New(a *arena.Arena, t *table.Table, arenaMu, tableMu sync.Locker, opts ...Option) *Collector {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		arena:     a,
		table:     t,
		arenaMu:   arenaMu,
		tableMu:   tableMu,
		interval:  DefaultInterval,
		threshold: DefaultThreshold,
		logger:    slog.New(slog.DiscardHandler),
		observer:  noopObserver{},
		ctx:       ctx,
		cancel:    cancel,
		wakeCh:    make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect runs one cycle: sweep every unmarked slot, then compact if the
// arena is fragmented enough.
func (c *Collector) Collect(ctx context.Context) (Result, error) {
	if err := c.Err(); err != nil {
		return Result{}, err
	}
	if err := c.rc.AcquireBackground(ctx); err != nil {
		return Result{}, err
	}
	defer c.rc.ReleaseBackground()
	return c.collect(ctx)
}

func (c *Collector) collect(ctx context.Context) (Result, error) {
	defer c.Trap()

	start := time.Now()
	res := Result{Swept: roaring.New()}

	for i := range c.table.Cap() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		swept, err := c.sweep(i)
		if err != nil {
			return res, err
		}
		if swept {
			id, err := conv.IntToUint32(i)
			if err != nil {
				return res, err
			}
			res.Swept.Add(id)
		}
	}

	if err := c.maybeCompact(&res); err != nil {
		return res, err
	}
	res.Duration = time.Since(start)

	c.observer.OnCollect(res)
	c.logger.Debug("collection cycle",
		"swept", res.Count(),
		"ratio", res.Ratio,
		"compacted", res.Compacted,
		"moved", res.Moved,
		"duration", res.Duration)

	return res, nil
}

func (c *Collector) sweep(slot int) (bool, error) {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	c.tableMu.Lock()
	defer c.tableMu.Unlock()

	if c.arena.Released() {
		return false, arena.ErrReleased
	}
	if !c.table.Garbage(slot) {
		return false, nil
	}

	off, _ := c.table.Lookup(slot)
	c.arena.Free(off)
	if err := c.table.Remove(slot); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collector) maybeCompact(res *Result) error {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	c.tableMu.Lock()
	defer c.tableMu.Unlock()

	if c.arena.Released() {
		return arena.ErrReleased
	}

	res.Ratio = c.arena.FragmentationRatio()
	if res.Ratio < c.threshold {
		return nil
	}

	moved, err := c.CompactLocked()
	if err != nil {
		return err
	}
	res.Compacted = true
	res.Moved = moved
	return nil
}

// CompactLocked slides every allocated block to the low end of the arena and
// rewrites the table to match. The caller holds both locks.
func (c *Collector) CompactLocked() (int, error) {
	if c.arena.Released() {
		return 0, arena.ErrReleased
	}

	c.arena.PlanRelocation()
	if err := c.table.Relocate(c.arena.RelocatedHeader); err != nil {
		// A live slot names something that is not an allocated block.
		panic(fmt.Errorf("gc: %w", err))
	}
	moved := c.arena.Slide()
	c.arena.RepairFooters()

	c.logger.Debug("arena compacted", "moved", moved, "free_words", c.arena.Stats().FreeWords)
	return moved, nil
}

// Err returns the fault recorded by Trap, wrapped in ErrFaulted, or nil.
func (c *Collector) Err() error {
	if p := c.fault.Load(); p != nil {
		return *p
	}
	return nil
}

// Trap records a panic in flight as the collector's fault and panics again.
// Every caller that mutates the arena defers it, so a corruption panic
// leaves the collector, and whoever checks Err, refusing further work.
func (c *Collector) Trap() {
	if r := recover(); r != nil {
		c.fail(r)
		panic(r)
	}
}

func (c *Collector) fail(r any) {
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}
	err := fmt.Errorf("%w: %w", ErrFaulted, cause)
	if c.fault.CompareAndSwap(nil, &err) {
		c.logger.Error("arena corrupted", "error", cause)
	}
}

// Start launches the background loop. It is a no-op after the first call.
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		GoSafe(c.logger, c.run)
	})
}

// Wake asks the background loop for a cycle without waiting for it.
func (c *Collector) Wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// Stop ends the background loop and waits for it to return. A cycle in
// progress is cancelled between slots.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.closeCh)
		c.cancel()
	})
	c.wg.Wait()
}

func (c *Collector) run() {
	defer c.wg.Done()

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.closeCh:
			return
		case <-tick:
			c.cycle()
		case <-c.wakeCh:
			c.cycle()
		}
	}
}

// cycle runs a background collection unless every worker slot is busy, in
// which case the tick is dropped.
func (c *Collector) cycle() {
	if c.Err() != nil {
		return
	}
	if !c.rc.TryAcquireBackground() {
		c.logger.Debug("collection skipped, workers busy")
		return
	}
	defer c.rc.ReleaseBackground()

	if _, err := c.collect(c.ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, arena.ErrReleased) {
			return
		}
		c.logger.Error("collection cycle failed", "error", err)
	}
}
