// Package engine runs a recorded program against a shared array.
//
// ExecuteAll stages the ordered source buffer from the array, walks the
// chunk tree dispatching each leaf to a backend, and adds the staged
// destinations back into the array.
//
// WALK ORDER:
//
// Leaves run in tape order. A gate (a hoisted bracket) runs its whole
// subtree as one unit when the walk reaches it. Siblings that the chunk
// tree marked parallel run on private stacks, concurrently when enabled,
// and add their increments back into the parent stack after they join.
//
// SKIPS:
//
// When a false If closes after the leaf it opened in, the backend reports
// the open depth in the frame. Following leaves are scanned instead of
// executed: nested If/EndIf pairs are tracked so an inner terminator does
// not end the skip, and every skipped NextSource/NextDestination advances
// its cursor. When the skip closes inside a leaf, the rest of that leaf
// runs. Every leaf entered at its start checks that the cursors equal its
// recorded ordered ranges.
//
// The walk has no suspension points. Apart from parallel groups it is
// single-threaded and deterministic; parallel groups add their
// contributions in tape order, but floating-point results may differ in
// the last bits from a sequential run.
package engine
