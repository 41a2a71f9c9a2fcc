package engine

import "context"

// Hook is a command callback for one sub-phase. Failures are reported with
// p.SetError, never by panicking.
type Hook func(ctx context.Context, p *Phase)

// Hooks maps sub-phase names ("pre_main", "main", "post_main", ...) to callbacks.
// Missing entries are no-ops.
type Hooks map[string]Hook

// Command is the unit of work driven by the Engine. One concrete type exists per
// CLI verb, each overriding only the hooks it needs.
type Command interface {
	// Name identifies the command, e.g. "install".
	Name() string

	// NeedsAuthentication gates the engine body of the authenticate group.
	NeedsAuthentication() bool

	// Hooks returns the command's overrides.
	Hooks() Hooks
}

// Base provides defaults for Command implementations.
type Base struct {
	CommandName string
}

// Name implements Command.
func (b Base) Name() string { return b.CommandName }

// NeedsAuthentication implements Command.
func (b Base) NeedsAuthentication() bool { return false }

// Hooks implements Command.
func (b Base) Hooks() Hooks { return Hooks{} }

// BodyFunc is engine-internal logic for one sub-phase.
type BodyFunc func(ctx context.Context, p *Phase)

// Bodies maps sub-phase names to engine logic, run in slice order.
type Bodies map[string][]BodyFunc

// Add appends a body for a sub-phase.
func (b Bodies) Add(phase string, fn BodyFunc) {
	b[phase] = append(b[phase], fn)
}
