// Package chunk builds and finalizes the chunk tree of a recorded program.
//
// A chunk is a contiguous sub-range of the tape with its own view of the
// virtual stack. Chunks form an n-ary tree stored in an arena: nodes are
// addressed by NodeID handles and parent/child links are indices, so a
// finalized tree can be walked by many goroutines without aliasing hazards.
//
// # Lifecycle
//
//  1. The recorder drives a Builder with nested Start/End calls that mirror
//     the client's recursion.
//  2. Build closes the root and calls Finalize.
//  3. Hoisting (package hoist) may restructure leaves and calls Finalize
//     again.
//  4. The engine walks the tree read-only.
//
// # Finalize
//
// Finalize runs three passes:
//
//   - Gap filling inserts an implicit non-parallel child for any uncovered
//     sub-range so that at every level the children partition the parent
//     exactly in all three dimensions (commands, sources, destinations).
//   - Liveness computes per leaf the first read, first write and last use of
//     every slot, then renumbers leaf-local slots with a linear scan so that
//     non-overlapping live ranges share storage.
//   - Aliasing assigns each node a buffer: sequential children share their
//     parent's buffer; parallel children get a private buffer, copy in the
//     slots they touch and accumulate their writes back.
package chunk
