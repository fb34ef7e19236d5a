package testutil

// FixedRunID names every run the same.
//
// engine.FixedGenerator hands out a list of ids and panics when it runs
// dry; FixedRunID suits scenarios that run an unknown number of times.
// It satisfies engine.RunIDGenerator.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a generator returning id. An empty id becomes
// "test-run-default".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed id.
func (g *FixedRunID) Generate() string {
	return g.id
}
