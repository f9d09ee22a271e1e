// Package gc implements the mark-sweep collector and sliding compaction.
//
// Roots are scope membership: a table slot is live while it is marked, and
// closing a scope clears the marks of the slots it rooted. A collection
// cycle frees every valid, unmarked slot and its arena block, one slot per
// lock acquisition so mutators interleave with the sweep. When the arena's
// fragmentation ratio reaches the configured threshold the cycle compacts:
//
//  1. the arena records each allocated block's destination in its footer
//  2. the table rewrites every live offset from those records
//  3. the arena slides blocks down and leaves one free tail
//  4. the arena restores its footers and resets its free counters
//
// Compaction holds both the arena and the table lock for all four passes.
// Callers that already hold them use CompactLocked.
//
// The collector also runs in the background on a ticker and on Wake.
package gc
