// Package harness runs program scenarios: YAML files that describe a
// recording, the array it runs against and the expected outcome.
//
// # Scenario Format
//
//	name: guarded_chunks
//	description: "Chunks inside a false If are skipped"
//	settings:
//	  backend: interpreter
//	  max_chunk: 4
//	data: [1, 5, 0, 0]
//	program:
//	  - {op: source, slot: x, index: 0}
//	  - {op: source, slot: y, index: 1}
//	  - {op: gt, args: [x, y]}
//	  - op: if
//	    body:
//	      - op: chunk
//	        body:
//	          - {op: dest, args: [x], index: 3}
//	expect:
//	  output: [1, 5, 0, 0]
//	  stats: {skipped: 1}
//
// Slots are named. Allocating ops (source, zero, copy) bind slot; other
// ops take their slot operands in args. Block ops (if, scope, chunk,
// replay) nest their body between the matching calls. A label records
// the current tape position; replay re-records its body against the
// tape starting at that label.
//
// # Expectations
//
//   - output: the array after one run, compared exactly
//   - error: the error code the recording or the run must fail with
//   - stats: a subset of the run counters
//
// Golden snapshots (testdata/golden/<name>.golden) hold the
// disassembled tape, the leaf layout and the outcome. Regenerate with:
//
//	go test ./internal/harness -update
package harness
