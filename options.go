package handleheap

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/handleheap/internal/gc"
	"github.com/hupe1980/handleheap/internal/resource"
)

const (
	// DefaultTableSize is the number of handle slots.
	DefaultTableSize = 1024
	// MaxTableSize is the largest slot count a handle id can address.
	MaxTableSize = 1 << (genShift - kindBits)
	// DefaultScopeDepth is the scope stack capacity, markers included.
	DefaultScopeDepth = 4096
	// DefaultCollectInterval is the background collection period.
	DefaultCollectInterval = gc.DefaultInterval
	// DefaultCompactionThreshold is the fragmentation ratio that triggers compaction.
	DefaultCompactionThreshold = gc.DefaultThreshold
)

// ResourceController governs memory, collector concurrency and warning rate
// across heaps. Share one between heaps to give them a common budget.
type ResourceController = resource.Controller

// ResourceConfig configures a ResourceController.
type ResourceConfig = resource.Config

// NewResourceController creates a ResourceController.
func NewResourceController(cfg ResourceConfig) *ResourceController {
	return resource.NewController(cfg)
}

type options struct {
	tableSize           int
	scopeDepth          int
	collectInterval     time.Duration
	compactionThreshold float64
	metricsCollector    MetricsCollector
	logger              *Logger
	memoryLimit         int64
	resourceController  *ResourceController
}

// Option configures a Heap.
type Option func(*options)

// WithTableSize sets the number of handle slots. It bounds how many handles
// can be live at once and may not exceed MaxTableSize.
func WithTableSize(n int) Option {
	return func(o *options) {
		o.tableSize = n
	}
}

// WithScopeDepth sets the scope stack capacity. Every open scope takes one
// entry and every handle created inside it takes another.
func WithScopeDepth(n int) Option {
	return func(o *options) {
		o.scopeDepth = n
	}
}

// WithCollectInterval sets the background collection period.
// Zero disables periodic collection; Wake still triggers a cycle.
func WithCollectInterval(d time.Duration) Option {
	return func(o *options) {
		o.collectInterval = d
	}
}

// WithCompactionThreshold sets the fragmentation ratio at which a collection
// cycle compacts the arena. The ratio is free words divided by the largest
// free block plus one.
func WithCompactionThreshold(ratio float64) Option {
	return func(o *options) {
		o.compactionThreshold = ratio
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &handleheap.BasicMetricsCollector{}
//	h, _ := handleheap.New(1<<20, handleheap.WithMetricsCollector(metrics))
//	// ... use h ...
//	stats := metrics.GetStats()
//	fmt.Printf("Creates: %d, Swept: %d\n", stats.CreateCount, stats.SweptHandles)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := handleheap.NewJSONLogger(slog.LevelInfo)
//	h, _ := handleheap.New(1<<20, handleheap.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMemoryLimit caps the arena's backing memory in bytes. New fails with
// ErrCapacity when the requested size exceeds it. Ignored when
// WithResourceController is also given.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithResourceController makes the heap charge its backing memory, run its
// collection cycles, and rate-limit its warnings through rc.
func WithResourceController(rc *ResourceController) Option {
	return func(o *options) {
		o.resourceController = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		tableSize:           DefaultTableSize,
		scopeDepth:          DefaultScopeDepth,
		collectInterval:     DefaultCollectInterval,
		compactionThreshold: DefaultCompactionThreshold,
		metricsCollector:    NoopMetricsCollector{},
		logger:              NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) validate() error {
	switch {
	case o.tableSize <= 0, o.tableSize > MaxTableSize:
		return fmt.Errorf("%w: table size %d", ErrInvalidArgument, o.tableSize)
	case o.scopeDepth <= 0:
		return fmt.Errorf("%w: scope depth %d", ErrInvalidArgument, o.scopeDepth)
	case o.collectInterval < 0:
		return fmt.Errorf("%w: collect interval %s", ErrInvalidArgument, o.collectInterval)
	case o.compactionThreshold <= 0:
		return fmt.Errorf("%w: compaction threshold %g", ErrInvalidArgument, o.compactionThreshold)
	case o.memoryLimit < 0:
		return fmt.Errorf("%w: memory limit %d", ErrInvalidArgument, o.memoryLimit)
	}
	return nil
}
