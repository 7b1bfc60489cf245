package verifier

// Phase is one step of the per-interaction replay machine.
type Phase int

const (
	PhasePending Phase = iota
	PhaseStateSetup
	PhaseRequestSent
	PhaseMatched
	PhaseMismatched
	PhaseStateTeardown
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "PENDING"
	case PhaseStateSetup:
		return "STATE_SETUP"
	case PhaseRequestSent:
		return "REQUEST_SENT"
	case PhaseMatched:
		return "MATCHED"
	case PhaseMismatched:
		return "MISMATCHED"
	case PhaseStateTeardown:
		return "STATE_TEARDOWN"
	case PhaseDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// machine records the phases one interaction passes through. The setup and
// teardown phases are only entered for interactions declaring a provider
// state; a transport failure skips both verdict phases.
type machine struct {
	phase Phase
	trace []Phase
}

func newMachine() *machine {
	return &machine{phase: PhasePending, trace: []Phase{PhasePending}}
}

func (m *machine) transition(next Phase) {
	m.phase = next
	m.trace = append(m.trace, next)
}
