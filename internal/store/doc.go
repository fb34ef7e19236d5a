// Package store provides SQLite-backed storage for recorded programs and
// their runs.
//
// Programs are content-addressed by ir.Fingerprint and stored once as a
// canonical CBOR blob holding the tape, the ordered index lists and the
// declared chunk spans. Runs reference a program and carry the run id
// (UUIDv7), the logical seq from the engine clock, the execution
// counters and a digest of the output array.
//
// # Ordering
//
// All ordering uses seq, never wall-clock time. Run listings are
// ORDER BY seq ASC, id ASC COLLATE BINARY so repeated queries return
// identical results.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
