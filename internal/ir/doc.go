// Package ir provides the instruction model for vstack tapes.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// instruction set the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - The opcode set is closed and versioned (OpcodeSetVersion)
//   - Instructions are immutable, fixed-size values
//   - Operand meaning depends on the opcode (slot, literal, or Unused)
//   - A Program is never mutated after the recorder hands it out
package ir
