package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTape  = "vstack/tape/v1"
	DomainRange = "vstack/range/v1"
)

// newDomainHash starts a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func newDomainHash(domain string) hash.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return h
}

func writeInstructions(h hash.Hash, code []Instruction) {
	var buf [9]byte
	for _, in := range code {
		buf[0] = byte(in.Op)
		binary.LittleEndian.PutUint32(buf[1:5], uint32(in.Target))
		binary.LittleEndian.PutUint32(buf[5:9], uint32(in.Source))
		h.Write(buf[:])
	}
}

func writeIndices(h hash.Hash, indices []int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(len(indices)))
	h.Write(buf[:])
	for _, idx := range indices {
		binary.LittleEndian.PutUint32(buf[:], uint32(idx))
		h.Write(buf[:])
	}
}

// Fingerprint computes the content-addressed identity of a program.
// Two recordings produce the same fingerprint only when their tapes,
// ordered index lists and addressing mode agree. Comments are excluded.
func Fingerprint(p *Program) string {
	h := newDomainHash(DomainTape)
	var hdr [9]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(p.StackSize))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(p.OriginalCount))
	if p.Ordered {
		hdr[8] = 1
	}
	h.Write(hdr[:])
	writeInstructions(h, p.Tape)
	writeIndices(h, p.Sources)
	writeIndices(h, p.Destinations)
	return hex.EncodeToString(h.Sum(nil))
}

// CodeFingerprint computes the identity of an instruction sequence alone.
// Structurally identical ranges at different tape positions share it,
// which lets compiled code be reused between them.
func CodeFingerprint(code []Instruction) string {
	h := newDomainHash(DomainRange)
	writeInstructions(h, code)
	return hex.EncodeToString(h.Sum(nil))
}
