package smoke

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseNavigating        Phase = "navigating"
	PhaseReady             Phase = "ready"
	PhaseReadinessTimedOut Phase = "readiness-timed-out"
	PhaseChecking          Phase = "checking"
	PhaseReporting         Phase = "reporting"
	PhaseFailureCaptured   Phase = "failure-captured"
	PhaseDone              Phase = "done"
)

var transitions = map[Phase][]Phase{
	PhaseIdle:              {PhaseNavigating},
	PhaseNavigating:        {PhaseReady, PhaseReadinessTimedOut},
	PhaseReady:             {PhaseChecking},
	PhaseReadinessTimedOut: {PhaseChecking},
	PhaseChecking:          {PhaseReporting},
	PhaseReporting:         {PhaseDone},
	PhaseFailureCaptured:   {PhaseDone},
}

// CanTransition reports whether a run may move from p to next. Every non
// terminal phase may fall through to FailureCaptured.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseFailureCaptured {
		return p != PhaseDone && p != PhaseFailureCaptured
	}
	return lo.Contains(transitions[p], next)
}

func (p Phase) Terminal() bool {
	return p == PhaseDone
}

type phaseTracker struct {
	current Phase
	history []Phase
}

func newPhaseTracker() *phaseTracker {
	return &phaseTracker{current: PhaseIdle, history: []Phase{PhaseIdle}}
}

func (t *phaseTracker) to(next Phase) error {
	if !t.current.CanTransition(next) {
		return errors.Errorf("illegal phase transition %s -> %s", t.current, next)
	}
	t.current = next
	t.history = append(t.history, next)
	return nil
}
