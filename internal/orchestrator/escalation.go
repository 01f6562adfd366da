package orchestrator

// Rung is a level of the remediation ladder.
type Rung int

const (
	// RungNone means no remediation applies; the failure is terminal.
	RungNone Rung = iota
	// RungRetry re-runs the failed step unchanged.
	RungRetry
	// RungTactical asks the planner to redesign only the remaining steps.
	RungTactical
	// RungFull discards all progress and regenerates the whole strategy.
	RungFull
)

// String returns a human-readable representation of the rung.
func (r Rung) String() string {
	switch r {
	case RungNone:
		return "none"
	case RungRetry:
		return "retry"
	case RungTactical:
		return "tactical_redesign"
	case RungFull:
		return "full_regeneration"
	default:
		return "unknown"
	}
}

// ladder tracks remediation budgets for one run.
// Each failure of a step climbs one rung for that step; every escalation,
// whatever its rung, spends one unit of the run-wide budget.
type ladder struct {
	maxStep  int
	maxTotal int
	failures map[string]int
	total    int
}

func newLadder(cfg Config) *ladder {
	return &ladder{
		maxStep:  cfg.MaxStepRemediations,
		maxTotal: cfg.MaxTotalRedesigns,
		failures: make(map[string]int),
	}
}

// onFailure records a failure of stepID and returns the rung to apply,
// or a terminal error when a budget is exhausted. A step that fails on
// every attempt is executed exactly maxStep times.
func (l *ladder) onFailure(stepID string, cause error) (Rung, error) {
	l.failures[stepID]++
	n := l.failures[stepID]

	if n >= l.maxStep {
		return RungNone, &MaxStepRemediationsExceeded{StepID: stepID, Attempts: n, Err: cause}
	}
	if l.total >= l.maxTotal {
		return RungNone, &MaxTotalRedesignsExceeded{Limit: l.maxTotal, StepID: stepID, Err: cause}
	}
	l.total++

	switch n {
	case 1:
		return RungRetry, nil
	case 2:
		return RungTactical, nil
	default:
		return RungFull, nil
	}
}

// attempts returns how many times stepID has failed.
func (l *ladder) attempts(stepID string) int {
	return l.failures[stepID]
}

// escalations returns the number of remediations applied so far.
func (l *ladder) escalations() int {
	return l.total
}
