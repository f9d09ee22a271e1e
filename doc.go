// Package handleheap provides a fixed-size, garbage-collected heap of typed
// values addressed through stable handles.
//
// A Heap owns one arena of 64-bit words obtained from an anonymous memory
// mapping. Blocks are carved out of it first-fit and carry boundary tags, so
// freeing and coalescing are constant time. Callers never see arena offsets:
// every value is reached through a Handle whose id names a slot in an
// indirection table, and only the table learns where a block lives. That is
// what lets the collector slide blocks together without invalidating handles.
//
// # Quick Start
//
//	h, err := handleheap.New(1 << 20) // 1 MiB arena
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	h.InitScope()
//	x, _ := h.CreateVar(handleheap.Int)
//	_ = h.AssignVar(x, handleheap.IntValue(42))
//	v, _ := h.ReadVar(x)
//	fmt.Println(v.Int()) // 42
//	h.EndScope()
//
// # Scopes and Collection
//
// Roots are scopes, not pointers. Every handle is created inside the
// innermost scope opened with InitScope and stays rooted until the matching
// EndScope. After that it is garbage and the next collection cycle frees it.
// Cycles run in the background every CollectInterval, on Wake, or
// synchronously through Collect. Free releases a handle at once.
//
// A cycle that leaves free space scattered (free words divided by the
// largest free block plus one at or above CompactionThreshold) also compacts
// the arena. Handles stay valid; only the table is rewritten.
//
// # Element Types
//
// Elements are bit-packed into words: eight Char or Bool, two Int, Int24 or
// Float, or one Long or Double per word. Int24 values outside
// [-2^23, 2^23) are truncated to 24 bits on write with a logged warning and
// sign-extended on read.
//
// # Concurrency
//
// All Heap methods are safe for concurrent use. The scope stack is shared:
// open and close scopes from one goroutine, or otherwise keep them properly
// nested across goroutines.
//
// # Errors
//
// Errors can be matched with errors.Is against the Err* sentinels. Type and
// index errors are also available as *TypeMismatchError and *IndexError via
// errors.As.
package handleheap
