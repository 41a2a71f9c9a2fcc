package engine

import (
	"fmt"
	"time"
)

// PhaseState is the lifecycle state of a Phase.
type PhaseState string

const (
	PhaseStateInitialized PhaseState = "initialized"
	PhaseStateStarted     PhaseState = "started"
	PhaseStateFinished    PhaseState = "finished"
	PhaseStateError       PhaseState = "error"
)

// Phase is a single lifecycle step. It is created by the Engine right before use,
// advanced with Next and discarded once finished.
type Phase struct {
	name  string
	state PhaseState

	initializedAt time.Time
	startedAt     time.Time
	finishedAt    time.Time

	err error

	endProcess        bool
	endProcessMessage string
}

// NewPhase creates a phase in the Initialized state.
func NewPhase(name string) *Phase {
	return &Phase{
		name:          name,
		state:         PhaseStateInitialized,
		initializedAt: time.Now(),
	}
}

// Name returns the phase name, e.g. "pre_ip_discovery".
func (p *Phase) Name() string {
	return p.name
}

// State returns the current state.
func (p *Phase) State() PhaseState {
	return p.state
}

// Next advances the phase by exactly one step.
// Initialized moves to Started and Started moves to Finished; any other call moves the
// phase to Error and returns a fatal error naming the phase.
func (p *Phase) Next() error {
	switch p.state {
	case PhaseStateInitialized:
		p.state = PhaseStateStarted
		p.startedAt = time.Now()
		return nil
	case PhaseStateStarted:
		p.state = PhaseStateFinished
		p.finishedAt = time.Now()
		return nil
	default:
		prev := p.state
		p.state = PhaseStateError
		return NewFatalError(fmt.Sprintf("invalid transition from state '%s'", prev), nil).
			WithPhase(p.name).
			WithCode(ErrCodePhaseNotFinished)
	}
}

// HasFinished reports whether the phase reached the Finished state.
func (p *Phase) HasFinished() bool {
	return p.state == PhaseStateFinished
}

// SetError attaches an error to the phase. The phase must still be advanced with Next.
func (p *Phase) SetError(err error) {
	p.err = err
}

// Error returns the error attached to the phase, if any.
func (p *Phase) Error() error {
	return p.err
}

// EndProcess asks the engine to skip to the terminal phase groups once the current
// group completes. The message is shown to the user at the end of the run.
func (p *Phase) EndProcess(message string) {
	p.endProcess = true
	p.endProcessMessage = message
}

// EndsProcess reports whether EndProcess was called.
func (p *Phase) EndsProcess() bool {
	return p.endProcess
}

// EndProcessMessage returns the message given to EndProcess.
func (p *Phase) EndProcessMessage() string {
	return p.endProcessMessage
}

// InitializedAt returns the creation time.
func (p *Phase) InitializedAt() time.Time { return p.initializedAt }

// StartedAt returns the time Next moved the phase to Started.
func (p *Phase) StartedAt() time.Time { return p.startedAt }

// FinishedAt returns the time Next moved the phase to Finished.
func (p *Phase) FinishedAt() time.Time { return p.finishedAt }

// Duration returns the time spent between start and finish.
func (p *Phase) Duration() time.Duration {
	if p.finishedAt.IsZero() || p.startedAt.IsZero() {
		return 0
	}
	return p.finishedAt.Sub(p.startedAt)
}

// String implements fmt.Stringer.
func (p *Phase) String() string {
	return p.name
}
