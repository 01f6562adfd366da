package models

// Mode selects which orchestrator runs a strategy.
type Mode string

const (
	// ModeSequential walks the steps in order.
	ModeSequential Mode = "sequential"
	// ModeParallel schedules steps in dependency waves.
	ModeParallel Mode = "parallel"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel:
		return true
	default:
		return false
	}
}
