package orchestrator

import "fmt"

type State string

const (
	StateScaffolding     State = "SCAFFOLDING"
	StateGenerating      State = "GENERATING"
	StateValidating      State = "VALIDATING"
	StateBuilding        State = "BUILDING"
	StateTesting         State = "TESTING"
	StateSucceeded       State = "SUCCEEDED"
	StateFailedExhausted State = "FAILED_EXHAUSTED"
	StateFailedFault     State = "FAILED_FAULT"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailedExhausted || s == StateFailedFault
}

type Event string

const (
	EventStagePassed Event = "stage_passed"
	// EventRetry follows a failed stage while budget remains.
	EventRetry Event = "retry"
	// EventExhausted follows a failed stage on the last attempt.
	EventExhausted Event = "exhausted"
	EventFault     Event = "fault"
)

var transitions = map[State]map[Event]State{
	StateScaffolding: {
		EventStagePassed: StateGenerating,
		EventFault:       StateFailedFault,
	},
	StateGenerating: {
		EventStagePassed: StateValidating,
		EventRetry:       StateGenerating,
		EventExhausted:   StateFailedExhausted,
		EventFault:       StateFailedFault,
	},
	StateValidating: {
		EventStagePassed: StateBuilding,
		EventRetry:       StateGenerating,
		EventExhausted:   StateFailedExhausted,
		EventFault:       StateFailedFault,
	},
	StateBuilding: {
		EventStagePassed: StateTesting,
		EventRetry:       StateGenerating,
		EventExhausted:   StateFailedExhausted,
		EventFault:       StateFailedFault,
	},
	StateTesting: {
		EventStagePassed: StateSucceeded,
		EventRetry:       StateGenerating,
		EventExhausted:   StateFailedExhausted,
		EventFault:       StateFailedFault,
	},
}

// Next returns the state reached from s on e. Terminal states accept no
// events.
func Next(s State, e Event) (State, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("no transition from %s on %s", s, e)
	}
	return next, nil
}
