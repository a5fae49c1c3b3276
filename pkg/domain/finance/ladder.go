package finance

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Ladder state constants for statekit integration.
// These must remain untyped string constants for statekit.StateID compatibility.
// Values are kept in sync with the HealthStatus and Priority constants.
const (
	ladderGood     = "good"
	ladderAtRisk   = "at-risk"
	ladderLow      = "low"
	ladderMedium   = "medium"
	ladderHigh     = "high"
	ladderCritical = "critical"
)

// init validates that the ladder states match the value types and that both
// machines build.
func init() {
	stateMap := map[string]string{
		ladderGood:   string(HealthGood),
		ladderAtRisk: string(HealthAtRisk),
		ladderLow:    string(PriorityLow),
		ladderMedium: string(PriorityMedium),
		ladderHigh:   string(PriorityHigh),
	}
	for fsmState, value := range stateMap {
		if fsmState != value {
			panic(fmt.Sprintf("ladder state %q does not match value %q - constants are out of sync", fsmState, value))
		}
	}
	if string(HealthCritical) != ladderCritical || string(PriorityCritical) != ladderCritical {
		panic("ladder state \"critical\" is out of sync")
	}

	if _, err := newHealthLadder(); err != nil {
		panic(err)
	}
	if _, err := newPriorityLadder(); err != nil {
		panic(err)
	}
}

type ladderContext struct{}

// ladder is an escalate-only state machine. Each level accepts an event named
// after every level above it, so a lower event sent later never brings the
// state back down. The top level only transitions to itself.
type ladder struct {
	interpreter *statekit.Interpreter[ladderContext]
}

func newHealthLadder() (*ladder, error) {
	builder := statekit.NewMachine[ladderContext]("health-ladder").
		WithInitial(statekit.StateID(ladderGood)).
		WithContext(ladderContext{})

	builder.State(ladderGood).
		On(ladderAtRisk).Target(ladderAtRisk).
		On(ladderCritical).Target(ladderCritical).
		Done()

	builder.State(ladderAtRisk).
		On(ladderCritical).Target(ladderCritical).
		Done()

	builder.State(ladderCritical).
		On(ladderCritical).Target(ladderCritical).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build health ladder: %w", err)
	}
	return startLadder(statekit.NewInterpreter(machine)), nil
}

func newPriorityLadder() (*ladder, error) {
	builder := statekit.NewMachine[ladderContext]("priority-ladder").
		WithInitial(statekit.StateID(ladderLow)).
		WithContext(ladderContext{})

	builder.State(ladderLow).
		On(ladderMedium).Target(ladderMedium).
		On(ladderHigh).Target(ladderHigh).
		On(ladderCritical).Target(ladderCritical).
		Done()

	builder.State(ladderMedium).
		On(ladderHigh).Target(ladderHigh).
		On(ladderCritical).Target(ladderCritical).
		Done()

	builder.State(ladderHigh).
		On(ladderCritical).Target(ladderCritical).
		Done()

	builder.State(ladderCritical).
		On(ladderCritical).Target(ladderCritical).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build priority ladder: %w", err)
	}
	return startLadder(statekit.NewInterpreter(machine)), nil
}

func startLadder(interpreter *statekit.Interpreter[ladderContext]) *ladder {
	interpreter.Start()
	return &ladder{interpreter: interpreter}
}

// Raise moves the ladder to level if level is above the current state.
func (l *ladder) Raise(level string) {
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(level)})
}

// Current returns the current level.
func (l *ladder) Current() string {
	return string(l.interpreter.State().Value)
}
