package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mooreio/mio/pkg/telemetry"
)

// Options configures an Engine.
type Options struct {
	// RunID identifies the run in logs and history. Generated when empty.
	RunID string

	// Table overrides the phase-group table. DefaultTable is used when nil.
	Table []Group

	// Bodies holds the engine-internal logic per sub-phase.
	Bodies Bodies

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Engine executes one Command through the fixed phase-group sequence.
type Engine struct {
	runID   string
	table   []Group
	bodies  Bodies
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	command Command
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Table == nil {
		opts.Table = DefaultTable()
	}
	if opts.Bodies == nil {
		opts.Bodies = Bodies{}
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNopLogger()
	}
	return &Engine{
		runID:   opts.RunID,
		table:   opts.Table,
		bodies:  opts.Bodies,
		logger:  opts.Logger.NewComponentLogger("engine").WithRunID(opts.RunID),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
}

// RunID returns the identifier of this run.
func (e *Engine) RunID() string {
	return e.runID
}

// Bind sets the command for this run. It may be called only once.
func (e *Engine) Bind(cmd Command) error {
	if cmd == nil {
		return NewFatalError("command must not be nil", nil).WithCode(ErrCodeInvalidCommand)
	}
	if e.command != nil {
		return NewFatalError("a command is already bound to this engine", nil).
			WithCode(ErrCodeInvalidCommand).
			WithDetail("bound", e.command.Name())
	}
	e.command = cmd
	return nil
}

// Command returns the bound command.
func (e *Engine) Command() Command {
	return e.command
}

// Execute runs the bound command through every phase group. Phase errors are collected
// in the Result; the returned error is only set for engine-contract violations.
func (e *Engine) Execute(ctx context.Context) (*Result, error) {
	if e.command == nil {
		return nil, NewFatalError("no command bound to the engine", nil).WithCode(ErrCodeInvalidCommand)
	}

	res := newResult(e.runID, e.command.Name())
	log := e.logger.WithCommand(e.command.Name())
	ctx = log.WithContext(ctx)

	ended := false
	for _, g := range e.table {
		if ended && !g.Terminal {
			continue
		}

		groupEnded, err := e.runGroup(ctx, g, res)
		if err != nil {
			res.Fatal = err
			res.FinishedAt = time.Now()
			log.WithError(err).Error("run aborted")
			return res, err
		}
		if groupEnded && !ended {
			ended = true
			res.EndedEarly = true
			log.WithField("group", g.Name).Debug("ending run early")
		}
	}

	res.FinishedAt = time.Now()
	return res, nil
}

func (e *Engine) runGroup(ctx context.Context, g Group, res *Result) (bool, error) {
	ctx, span := e.tracer.StartSpan(ctx, "phase_group."+g.Name,
		telemetry.AttrRunID.String(e.runID),
		telemetry.AttrCommand.String(e.command.Name()))
	defer span.End()

	start := time.Now()
	log := telemetry.FromContext(ctx).WithField("group", g.Name)
	log.Debug("phase group started")

	hooks := e.command.Hooks()
	runEngine := g.EngineGuard == nil || g.EngineGuard(e.command)
	ended := false

	for _, sp := range g.SubPhases {
		p := NewPhase(sp.Name)

		if err := p.Next(); err != nil {
			return ended, err
		}

		for _, kind := range sp.Callbacks {
			switch kind {
			case EnginePre, EngineBody, EnginePost:
				if !runEngine {
					continue
				}
				for _, fn := range e.bodies[sp.Name] {
					fn(ctx, p)
				}
			case CommandPre, CommandBody, CommandPost:
				if h := hooks[sp.Name]; h != nil {
					h(ctx, p)
				}
			}
		}

		if err := p.Next(); err != nil {
			return ended, err
		}
		if !p.HasFinished() {
			return ended, NewFatalError("phase did not finish properly", nil).
				WithPhase(p.Name()).
				WithCode(ErrCodePhaseNotFinished)
		}

		res.record(g.Name, p)

		if err := p.Error(); err != nil {
			e.metrics.RecordPhaseError(p.Name())
			e.tracer.RecordError(span, err)
			log.WithPhase(p.Name()).WithError(err).Debug("phase reported an error")
			if IsFatal(err) {
				return ended, err
			}
			if IsUser(err) {
				ended = true
			}
		}
		if p.EndsProcess() {
			ended = true
			if msg := p.EndProcessMessage(); msg != "" {
				res.EndMessage = msg
			}
		}
	}

	res.GroupsRun = append(res.GroupsRun, g.Name)
	e.metrics.RecordPhaseGroup(g.Name, time.Since(start))
	return ended, nil
}
