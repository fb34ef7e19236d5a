package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/vstack/internal/chunk"
	"github.com/roach88/vstack/internal/ir"
)

// cborEncMode encodes program bodies in canonical form so the same
// program always produces the same blob.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// programBody is the stored form of a program and its declared chunks.
type programBody struct {
	OpcodeSet int          `cbor:"1,keyasint"`
	Program   *ir.Program  `cbor:"2,keyasint"`
	Spans     []chunk.Span `cbor:"3,keyasint,omitempty"`
}

func marshalProgram(p *ir.Program, spans []chunk.Span) ([]byte, error) {
	data, err := cborEncMode.Marshal(programBody{
		OpcodeSet: ir.OpcodeSetVersion,
		Program:   p,
		Spans:     spans,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal program: %w", err)
	}
	return data, nil
}

func unmarshalProgram(data []byte) (*ir.Program, []chunk.Span, error) {
	var body programBody
	if err := cbor.Unmarshal(data, &body); err != nil {
		return nil, nil, fmt.Errorf("unmarshal program: %w", err)
	}
	if body.OpcodeSet != ir.OpcodeSetVersion {
		return nil, nil, fmt.Errorf("%w: stored %d, supported %d", ErrOpcodeSet, body.OpcodeSet, ir.OpcodeSetVersion)
	}
	if body.Program == nil {
		return nil, nil, fmt.Errorf("unmarshal program: empty body")
	}
	return body.Program, body.Spans, nil
}

// OutputDigest returns the hex SHA-256 of the IEEE-754 bit patterns of
// data, little-endian. Runs that produce bit-identical arrays share it.
func OutputDigest(data []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
