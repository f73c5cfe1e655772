package session

// Phase represents one of the six fixed, strictly-ordered segments of a
// coaching session. Phases only ever advance; they never regress and none
// may be skipped.
type Phase string

const (
	PhaseStartup          Phase = "startup"
	PhaseMindSweepCapture Phase = "mind_sweep_capture"
	PhaseMindSweepProcess Phase = "mind_sweep_process"
	PhaseProjectReview    Phase = "project_review"
	PhasePrioritization   Phase = "prioritization"
	PhaseWrapUp           Phase = "wrap_up"
)

// phaseOrder defines the total ordering of phases.
var phaseOrder = []Phase{
	PhaseStartup,
	PhaseMindSweepCapture,
	PhaseMindSweepProcess,
	PhaseProjectReview,
	PhasePrioritization,
	PhaseWrapUp,
}

// DefaultBudgetSeconds is the static phase budget table. The total session
// budget is fixed at 1800 seconds (30 minutes) and is a hard external
// contract; it changes only through explicit configuration.
var DefaultBudgetSeconds = map[Phase]int{
	PhaseStartup:          120,
	PhaseMindSweepCapture: 300,
	PhaseMindSweepProcess: 300,
	PhaseProjectReview:    600,
	PhasePrioritization:   300,
	PhaseWrapUp:           180,
}

// TotalBudgetSeconds is the fixed whole-session budget.
const TotalBudgetSeconds = 1800

// Phases returns the six phases in execution order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the position of the phase in the ordering, or -1 if unknown.
func (p Phase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the six known phases.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Next returns the phase that follows p. ok is false for the terminal
// phase and for unknown phases.
func (p Phase) Next() (next Phase, ok bool) {
	idx := p.Index()
	if idx < 0 || idx >= len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[idx+1], true
}

// Before reports whether p strictly precedes other in the ordering.
func (p Phase) Before(other Phase) bool {
	pi, oi := p.Index(), other.Index()
	return pi >= 0 && oi >= 0 && pi < oi
}
