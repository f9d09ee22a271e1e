// Package table implements the handle indirection table.
//
// A Table is a fixed array of slots mapping a stable slot index to the arena
// offset of a block header. Callers hold slot indexes; the collector rewrites
// offsets in place when blocks move, so indexes stay valid across compaction.
//
// Free slots form a singly linked list threaded through Offset. Insert pops
// the head and Remove pushes onto the tail, so a freed index is the last one
// to be handed out again.
//
// A Table is not safe for concurrent use; the owner serializes access.
package table
