// Package arena provides the fixed-size word arena behind handleheap.
//
// The arena is a single []uint64 view over an anonymous mapping. Blocks are
// delimited by boundary tags: a header word and a footer word, both holding
// (lengthInWords << 1) | allocatedBit, where the length covers the whole
// block including both tags. Free blocks form an implicit free list that is
// walked first-fit.
//
// # Layout
//
//	| hdr | payload ... | ftr | hdr | payload ... | ftr | ...
//	  ^ header offset (word index) identifies the block
//
// The word before any header is the footer of the preceding block, which is
// what makes backward coalescing O(1).
//
// # Compaction
//
// Compaction is split into four passes so that the handle table can be
// rewritten between planning and moving:
//
//  1. PlanRelocation stores each allocated block's new header offset in its footer.
//  2. RelocatedHeader reads that offset back (called once per live handle).
//  3. Slide moves allocated blocks down and merges all free space at the end.
//  4. RepairFooters restores header == footer for every block.
//
// # Concurrency
//
// Arena is not safe for concurrent use. The owner serializes access.
package arena
