package ir

// Version constants for the instruction set and engine.
const (
	// OpcodeSetVersion identifies the closed opcode set understood by this
	// build. Bump it whenever an opcode is added, removed or renumbered.
	OpcodeSetVersion = 2

	// EngineVersion is the vstack engine version.
	EngineVersion = "0.1.0"
)
