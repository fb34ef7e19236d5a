package recorder

import (
	"github.com/roach88/vstack/internal/ir"
)

// BeginReplay declares that the calls up to the matching EndReplay repeat
// the region already recorded at start. Until then nothing is appended:
// each call is checked against the instruction at the replay cursor.
// Replays nest; a nested replay is checked against every active marker.
func (r *Recorder) BeginReplay(start int) {
	if !r.ok() {
		return
	}
	if start < 1 || start >= len(r.tape) {
		r.fail(newError(ErrCodeInvalidOperand, start, "replay start %d outside recorded tape [1,%d)", start, len(r.tape)))
		return
	}
	r.replays = append(r.replays, replayMarker{
		start:    start,
		cursor:   start,
		brackets: len(r.brackets),
	})
	r.logger.Debug("replay started", "start", start, "nesting", len(r.replays))
}

// EndReplay closes the innermost replay. Brackets and chunks opened
// inside the replay must be closed inside it.
func (r *Recorder) EndReplay() {
	if !r.ok() {
		return
	}
	n := len(r.replays)
	if n == 0 {
		r.fail(newError(ErrCodeUnmatchedBracket, len(r.tape), "EndReplay without BeginReplay"))
		return
	}
	m := r.replays[n-1]
	if len(r.brackets) != m.brackets {
		r.fail(newError(ErrCodeUnmatchedBracket, m.cursor, "replay from %d left %d bracket(s) open", m.start, len(r.brackets)-m.brackets))
		return
	}
	if m.chunks != 0 {
		r.fail(newError(ErrCodeUnmatchedChunk, m.cursor, "replay from %d left %d chunk(s) open", m.start, m.chunks))
		return
	}
	r.replays = r.replays[:n-1]
	r.logger.Debug("replay verified", "start", m.start, "end", m.cursor)
}

// sameInstruction compares a recorded and a requested instruction.
// Comments match on opcode alone.
func sameInstruction(want, got ir.Instruction) bool {
	if want.Op != got.Op {
		return false
	}
	return got.Op == ir.OpComment || (want.Target == got.Target && want.Source == got.Source)
}

// verify checks in against every active replay marker and advances them.
func (r *Recorder) verify(in ir.Instruction) bool {
	for i := range r.replays {
		m := &r.replays[i]
		if m.cursor >= len(r.tape) {
			r.fail(r.overrun(i))
			return false
		}
		if want := r.tape[m.cursor]; !sameInstruction(want, in) {
			r.fail(r.mismatch(m.cursor, want, in))
			return false
		}
	}
	for i := range r.replays {
		r.replays[i].cursor++
	}
	return true
}

func (r *Recorder) overrun(i int) *RecordError {
	m := r.replays[i]
	return newError(ErrCodeReplayOverrun, m.cursor, "replay from %d ran past the end of the tape", m.start)
}

func (r *Recorder) mismatch(pos int, want, got ir.Instruction) *RecordError {
	err := newError(ErrCodeReplayMismatch, pos, "replayed instruction differs from the recorded one")
	err.Expected = &want
	err.Got = &got
	err.Provenance = make(map[int32]ir.SlotOrigin)

	collect := func(in ir.Instruction) {
		add := func(s int32) {
			if origin, ok := r.provenance[s]; ok {
				err.Provenance[s] = origin
			}
		}
		in.Reads(add)
		in.Writes(add)
	}
	collect(want)
	if got.Op.Valid() {
		collect(got)
	}
	if len(err.Provenance) == 0 {
		err.Provenance = nil
	}
	return err
}
