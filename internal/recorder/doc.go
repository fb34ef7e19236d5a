// Package recorder builds instruction tapes.
//
// A Recorder is driven by client code that would otherwise compute on
// doubles directly. Every "new value" call allocates a scratch slot from a
// bump allocator and appends one instruction; every "existing value" call
// appends one instruction against slots the client already holds. Scope
// brackets save and restore the allocator so deep recursions reuse slots.
//
// Chunk brackets (StartChunk/EndChunk) shape the chunk tree that Finish
// hands to the runner. Replay brackets (BeginReplay/EndReplay) let the
// client assert that a region it is about to record again is identical to
// one already on the tape; nothing is appended while a replay is active.
//
// ERROR DISCIPLINE:
//
// Errors are sticky. The first fatal error is kept, every later call is a
// no-op, and Err and Finish report it. New-value calls return ir.Unused
// once the recorder has failed.
//
// Thread-safety: a Recorder is single-writer. It is discarded after Finish.
package recorder
