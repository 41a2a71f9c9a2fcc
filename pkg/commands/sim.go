package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
	"github.com/mooreio/mio/pkg/scheduler"
	"github.com/mooreio/mio/pkg/service"
)

const (
	// DefaultSeed is used when no seed is given.
	DefaultSeed = 1

	// DefaultMaxErrors stops a step after this many errors when -e is not given.
	DefaultMaxErrors = 10
)

// SimOptions are the flags of mio sim.
type SimOptions struct {
	Test      string
	Seed      int
	Verbosity string
	MaxErrors int

	// App selects the simulator; logic_simulation.default_simulator when empty.
	App string

	Waves    bool
	Coverage bool
	GUI      bool

	// Step selection. None set means compile, elaborate and simulate.
	PrepareDUT bool
	Compile    bool
	Elaborate  bool
	Simulate   bool

	// Args are +define+NAME[=VALUE] compilation and +NAME[=VALUE] simulation arguments.
	Args []string
}

// Sim compiles, elaborates and simulates an IP with a logic simulator.
type Sim struct {
	engine.Base
	rt     *root.Runtime
	target string
	opts   SimOptions

	prepareDUT          bool
	compile             bool
	elaborate           bool
	compileAndElaborate bool
	simulate            bool

	verbosity service.Verbosity
	defines   map[string]string
	plusArgs  map[string]string

	simulatorName string
	sched         scheduler.Scheduler
	simulator     service.LogicSimulator
	ip            *ip.IP

	ran                       bool
	stepErr                   error
	compilationReport         *service.Report
	elaborationReport         *service.Report
	compilationAndElaboration *service.Report
	simulationReport          *service.SimulationReport
}

// NewSim creates the sim command for target.
func NewSim(rt *root.Runtime, target string, opts SimOptions) *Sim {
	return &Sim{Base: engine.Base{CommandName: "sim"}, rt: rt, target: target, opts: opts}
}

// Hooks implements engine.Command.
func (c *Sim) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.GroupInit: c.init,
		engine.PostName(engine.GroupValidateConfigurationSpace): c.postValidateConfigurationSpace,
		engine.PostName(engine.GroupSchedulerDiscovery):         c.postSchedulerDiscovery,
		engine.PostName(engine.GroupServiceDiscovery):           c.postServiceDiscovery,
		engine.PostName(engine.GroupIPDiscovery):                c.postIPDiscovery,
		engine.GroupMain:   c.main,
		engine.GroupReport: c.report,
		engine.GroupFinal:  c.final,
	}
}

// Success reports whether every selected step succeeded.
func (c *Sim) Success() bool {
	if !c.ran || c.stepErr != nil {
		return false
	}
	for _, rep := range c.reports() {
		if rep == nil || !rep.Success {
			return false
		}
	}
	return true
}

// reports returns the report of every selected step in execution order; a
// step that did not run has a nil report.
func (c *Sim) reports() []*service.Report {
	var out []*service.Report
	if c.compile {
		out = append(out, c.compilationReport)
	}
	if c.elaborate {
		out = append(out, c.elaborationReport)
	}
	if c.compileAndElaborate {
		out = append(out, c.compilationAndElaboration)
	}
	if c.simulate {
		if c.simulationReport != nil {
			out = append(out, &c.simulationReport.Report)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

func (c *Sim) init(_ context.Context, p *engine.Phase) {
	if c.target == "" {
		fail(p, engine.NewUserError("no IP specified", nil).WithCode(engine.ErrCodeValidation))
		return
	}

	o := c.opts
	if !o.PrepareDUT && !o.Compile && !o.Elaborate && !o.Simulate {
		o.Compile, o.Elaborate, o.Simulate = true, true, true
	}
	if err := checkStepSequence(o.PrepareDUT, o.Compile, o.Elaborate, o.Simulate); err != nil {
		fail(p, err)
		return
	}
	c.prepareDUT, c.compile, c.elaborate, c.simulate = o.PrepareDUT, o.Compile, o.Elaborate, o.Simulate

	if c.simulate && c.opts.Test == "" {
		fail(p, engine.NewUserError("no test specified: use -t TEST", nil).WithCode(engine.ErrCodeValidation))
		return
	}

	c.verbosity = service.VerbosityMedium
	if c.opts.Verbosity != "" {
		v, err := service.ParseVerbosity(c.opts.Verbosity)
		if err != nil {
			fail(p, engine.NewUserError(err.Error(), nil).WithCode(engine.ErrCodeValidation))
			return
		}
		c.verbosity = v
	}
	if c.opts.Seed == 0 {
		c.opts.Seed = DefaultSeed
	}
	if c.opts.MaxErrors <= 0 {
		c.opts.MaxErrors = DefaultMaxErrors
	}

	defines, plusArgs, err := parseSimArgs(c.opts.Args)
	if err != nil {
		fail(p, err)
		return
	}
	c.defines, c.plusArgs = defines, plusArgs
}

func (c *Sim) postValidateConfigurationSpace(_ context.Context, p *engine.Phase) {
	c.simulatorName = c.opts.App
	if c.simulatorName == "" {
		c.simulatorName = c.rt.Config.LogicSimulation.DefaultSimulator
	}
	if c.simulatorName == "" {
		fail(p, engine.NewUserError("no simulator specified: use -a or set logic_simulation.default_simulator", nil).
			WithCode(engine.ErrCodeValidation))
	}
}

func (c *Sim) postSchedulerDiscovery(_ context.Context, p *engine.Phase) {
	sched, err := c.rt.DefaultScheduler()
	if err != nil {
		fail(p, engine.NewDomainError("no job scheduler available", err))
		return
	}
	c.sched = sched
}

func (c *Sim) postServiceDiscovery(_ context.Context, p *engine.Phase) {
	sim, err := c.rt.Services.FindLogicSimulator(c.simulatorName)
	if err != nil {
		fail(p, engine.NewUserError(fmt.Sprintf("unknown logic simulator '%s'", c.simulatorName), err).
			WithCode(engine.ErrCodeNotFound))
		return
	}
	if !sim.IsAvailable() {
		fail(p, engine.NewUserError(fmt.Sprintf("logic simulator '%s' is not installed", sim.FullName()), nil).
			WithCode(engine.ErrCodeNotFound))
		return
	}
	c.simulator = sim
}

func (c *Sim) postIPDiscovery(_ context.Context, p *engine.Phase) {
	found, err := findIP(c.rt, c.target)
	if err != nil {
		fail(p, err)
		return
	}
	if c.simulate && found.PkgType() != ip.PkgTypeDVTB {
		fail(p, engine.NewUserError(fmt.Sprintf("IP '%s' is not a Test Bench", found), nil).
			WithIP(found.QualifiedName()))
		return
	}
	if !found.DependenciesResolved() {
		var missing []string
		for _, def := range found.PendingDependencies() {
			missing = append(missing, def.String())
		}
		fail(p, engine.NewUserError(fmt.Sprintf("IP '%s' has unresolved dependencies: run 'mio install'", found), nil).
			WithIP(found.QualifiedName()).
			WithDetail("missing", strings.Join(missing, ", ")))
		return
	}
	c.ip = found

	// single-step flows only exist for pure SystemVerilog sources
	if c.compile && c.elaborate && !found.HasVHDLContent() {
		c.compile, c.elaborate = false, false
		c.compileAndElaborate = true
	}
}

func (c *Sim) main(ctx context.Context, p *engine.Phase) {
	c.ran = true
	log := c.rt.Logger.WithIP(c.ip.QualifiedName()).WithField("simulator", c.simulator.Name())

	if c.prepareDUT {
		log.Debug("no DUT preparation required")
	}

	compilation := service.CompilationConfig{
		MaxErrors:      c.opts.MaxErrors,
		EnableWaves:    c.opts.Waves,
		EnableCoverage: c.opts.Coverage,
		Defines:        c.defines,
	}
	if c.compile {
		rep, err := c.simulator.Compile(ctx, c.ip, compilation, c.sched)
		if !c.record(p, rep, err, &c.compilationReport) {
			return
		}
	}
	if c.elaborate {
		rep, err := c.simulator.Elaborate(ctx, c.ip, service.ElaborationConfig{MaxErrors: c.opts.MaxErrors}, c.sched)
		if !c.record(p, rep, err, &c.elaborationReport) {
			return
		}
	}
	if c.compileAndElaborate {
		rep, err := c.simulator.CompileAndElaborate(ctx, c.ip, compilation, c.sched)
		if !c.record(p, rep, err, &c.compilationAndElaboration) {
			return
		}
	}
	if c.simulate {
		rep, err := c.simulator.Simulate(ctx, c.ip, service.SimulationConfig{
			TestName:       c.opts.Test,
			Seed:           c.opts.Seed,
			Verbosity:      c.verbosity,
			MaxErrors:      c.opts.MaxErrors,
			GUI:            c.opts.GUI,
			EnableWaves:    c.opts.Waves,
			EnableCoverage: c.opts.Coverage,
			Args:           c.plusArgs,
		}, c.sched)
		if err != nil {
			c.stepErr = err
			p.SetError(err)
			return
		}
		c.simulationReport = rep
	}
}

// record keeps the report of a step and reports whether the next step may run.
func (c *Sim) record(p *engine.Phase, rep *service.Report, err error, dst **service.Report) bool {
	if err != nil {
		c.stepErr = err
		p.SetError(err)
		return false
	}
	*dst = rep
	return rep.Success
}

func (c *Sim) report(_ context.Context, _ *engine.Phase) {
	if !c.ran {
		return
	}
	printSimReport(c.rt.Out, c)
}

func (c *Sim) final(_ context.Context, p *engine.Phase) {
	if c.ran && !c.Success() {
		p.SetError(engine.NewDomainError("Logic Simulation failed.", nil).WithIP(c.ip.QualifiedName()))
	}
}

// checkStepSequence rejects a selection skipping a step between two selected ones.
func checkStepSequence(steps ...bool) error {
	first, last := -1, -1
	for i, on := range steps {
		if on {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	for i := first; i >= 0 && i <= last; i++ {
		if !steps[i] {
			return engine.NewUserError("illegal combination of step arguments: -D, -C, -E and -S must not skip a step", nil).
				WithCode(engine.ErrCodeValidation)
		}
	}
	return nil
}

// parseSimArgs splits --args into compilation defines and simulation plusargs.
func parseSimArgs(args []string) (map[string]string, map[string]string, error) {
	defines := map[string]string{}
	plusArgs := map[string]string{}
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		var (
			dst  map[string]string
			body string
		)
		switch {
		case strings.HasPrefix(arg, "+define+"):
			dst, body = defines, strings.TrimPrefix(arg, "+define+")
		case strings.HasPrefix(arg, "+"):
			dst, body = plusArgs, strings.TrimPrefix(arg, "+")
		default:
			return nil, nil, engine.NewUserError(fmt.Sprintf("invalid argument '%s': expected +define+NAME[=VALUE] or +NAME[=VALUE]", arg), nil).
				WithCode(engine.ErrCodeValidation)
		}
		name, value, _ := strings.Cut(body, "=")
		if name == "" {
			return nil, nil, engine.NewUserError(fmt.Sprintf("invalid argument '%s': missing name", arg), nil).
				WithCode(engine.ErrCodeValidation)
		}
		dst[name] = value
	}
	return defines, plusArgs, nil
}
