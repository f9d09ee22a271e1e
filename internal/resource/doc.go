// Package resource implements the Controller for process-wide limits.
//
// The Controller governs three resources shared by every heap it is handed to:
//
//   - Memory: the arena's backing mapping is charged against a hard limit
//     (non-blocking, fail-fast)
//   - Concurrency: the number of collection cycles that may run at once
//   - Warnings: a token bucket that bounds how often narrowing warnings
//     are logged
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and atomic counters
// for usage tracking. AcquireMemory returns immediately with
// ErrMemoryLimitExceeded if the limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if err := rc.AcquireMemory(ctx, 1024*1024); err != nil {
//	    // ErrMemoryLimitExceeded - caller decides retry/backoff
//	}
//	defer rc.ReleaseMemory(1024*1024)
//
// Controller satisfies arena.MemoryAcquirer.
//
// # Background Worker Limits
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
