package service

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/scheduler"
	"github.com/mooreio/mio/pkg/telemetry"
)

// DSim message prefixes.
const (
	dsimErrorPrefix   = "=E:"
	dsimWarningPrefix = "=W:"
	dsimFatalPrefix   = "=F:"
)

// DSim drives the Metrics DSim simulator: dvlcom and dvhcom compile
// SystemVerilog and VHDL into per-IP libraries, dsim elaborates them into an
// image and runs it.
type DSim struct {
	dirs      simulatorDirs
	cfg       *config.Configuration
	db        *ip.Database
	jobConfig scheduler.Configuration
	logger    *telemetry.Logger
}

var _ LogicSimulator = (*DSim)(nil)

// NewDSim creates the adapter. db supplies dependency order.
func NewDSim(paths Paths, cfg *config.Configuration, db *ip.Database, logger *telemetry.Logger) *DSim {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &DSim{
		dirs:   newSimulatorDirs("dsim", paths, cfg.LogicSimulation),
		cfg:    cfg,
		db:     db,
		logger: logger.NewComponentLogger("dsim"),
	}
}

// SetJobConfiguration sets the scheduler configuration used for every job.
func (d *DSim) SetJobConfiguration(cfg scheduler.Configuration) {
	d.jobConfig = cfg
}

func (d *DSim) Name() string     { return "dsim" }
func (d *DSim) FullName() string { return "Metrics DSim" }
func (d *DSim) Type() Type       { return TypeLogicSimulation }

// IsAvailable reports whether the dsim binary can be found, in the configured
// installation first.
func (d *DSim) IsAvailable() bool {
	if install := d.settings().InstallationPath; install != "" {
		info, err := os.Stat(filepath.Join(install, "bin", "dsim"))
		return err == nil && !info.IsDir()
	}
	_, err := exec.LookPath("dsim")
	return err == nil
}

// CreateDirectoryStructure creates the work, log and results directories.
func (d *DSim) CreateDirectoryStructure() error {
	return d.dirs.create()
}

// CreateFiles is a no-op: DSim needs no project files.
func (d *DSim) CreateFiles() error { return nil }

// WorkPath returns the DSim work directory of target.
func (d *DSim) WorkPath(target *ip.IP) string {
	return filepath.Join(d.dirs.work, target.WorkDirectoryName())
}

// Compile compiles target and its dependencies, dependencies first. It stops
// at the first library that fails.
func (d *DSim) Compile(ctx context.Context, target *ip.IP, cfg CompilationConfig, sched scheduler.Scheduler) (*Report, error) {
	start := time.Now()
	rep := &Report{Step: "compilation", Success: true}
	defer func() { rep.Duration = time.Since(start) }()

	order, err := d.withDependencies(target)
	if err != nil {
		return nil, err
	}
	work := d.WorkPath(target)
	if err := os.MkdirAll(work, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	for _, p := range order {
		src := d.sources(p)
		if len(src.sv) > 0 {
			log := filepath.Join(d.dirs.cmpLogs, p.ResultFileName()+".sv.log")
			ok, err := d.run(ctx, sched, d.svCompileJob(p, src, cfg, work, log), log, rep)
			if err != nil {
				return nil, err
			}
			if !ok {
				rep.Success = false
				return rep, nil
			}
		}
		if len(src.vhdl) > 0 {
			log := filepath.Join(d.dirs.cmpLogs, p.ResultFileName()+".vhdl.log")
			ok, err := d.run(ctx, sched, d.vhdlCompileJob(p, src, cfg, work, log), log, rep)
			if err != nil {
				return nil, err
			}
			if !ok {
				rep.Success = false
				return rep, nil
			}
		}
	}
	return rep, nil
}

// Elaborate builds the simulation image of target from compiled libraries.
func (d *DSim) Elaborate(ctx context.Context, target *ip.IP, cfg ElaborationConfig, sched scheduler.Scheduler) (*Report, error) {
	start := time.Now()
	rep := &Report{Step: "elaboration", Success: true}
	defer func() { rep.Duration = time.Since(start) }()

	order, err := d.withDependencies(target)
	if err != nil {
		return nil, err
	}
	tops := target.Descriptor.HDLSrc.Top
	if len(tops) == 0 {
		return nil, engine.NewUserError(fmt.Sprintf("IP '%s' declares no top module to elaborate", target), nil).
			WithIP(target.QualifiedName())
	}

	work := d.WorkPath(target)
	if err := os.MkdirAll(work, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	log := filepath.Join(d.dirs.elabLogs, target.ResultFileName()+".log")
	args := []string{"-work", work, "-genimage", target.ImageName()}
	for _, p := range order {
		args = append(args, "-L", p.LibName())
	}
	for _, top := range tops {
		args = append(args, "-top", target.LibName()+"."+top)
	}
	if cfg.MaxErrors > 0 {
		args = append(args, "-error-limit", strconv.Itoa(cfg.MaxErrors))
	}
	args = append(args, d.settings().ElaborationArguments...)
	args = append(args, "-l", log)

	ok, err := d.run(ctx, sched, d.job("elaborate-"+target.ResultFileName(), "dsim", args, work), log, rep)
	if err != nil {
		return nil, err
	}
	rep.Success = ok
	return rep, nil
}

// CompileAndElaborate compiles every SystemVerilog source of target and its
// dependencies and builds the image in a single dsim invocation. IPs with
// VHDL content must be compiled and elaborated separately.
func (d *DSim) CompileAndElaborate(ctx context.Context, target *ip.IP, cfg CompilationConfig, sched scheduler.Scheduler) (*Report, error) {
	start := time.Now()
	rep := &Report{Step: "compilation_and_elaboration", Success: true}
	defer func() { rep.Duration = time.Since(start) }()

	order, err := d.withDependencies(target)
	if err != nil {
		return nil, err
	}
	for _, p := range order {
		if p.HasVHDLContent() {
			return nil, engine.NewUserError(fmt.Sprintf("IP '%s' has VHDL content and cannot be compiled and elaborated in one step", p), nil).
				WithIP(p.QualifiedName())
		}
	}

	work := d.WorkPath(target)
	if err := os.MkdirAll(work, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	log := filepath.Join(d.dirs.caeLogs, target.ResultFileName()+".log")

	args := []string{"-work", work, "-genimage", target.ImageName()}
	args = append(args, d.commonSVArgs(cfg)...)
	for _, p := range order {
		src := d.sources(p)
		for _, dir := range src.dirs {
			args = append(args, "+incdir+"+dir)
		}
		args = append(args, src.sv...)
	}
	for _, top := range target.Descriptor.HDLSrc.Top {
		args = append(args, "-top", top)
	}
	args = append(args, d.settings().CompilationAndElaborationArguments...)
	args = append(args, "-l", log)

	ok, err := d.run(ctx, sched, d.job("cae-"+target.ResultFileName(), "dsim", args, work), log, rep)
	if err != nil {
		return nil, err
	}
	rep.Success = ok
	return rep, nil
}

// Simulate runs one test from the elaborated image of target. Results land in
// the directory named by the test_result_path_template setting.
func (d *DSim) Simulate(ctx context.Context, target *ip.IP, cfg SimulationConfig, sched scheduler.Scheduler) (*SimulationReport, error) {
	start := time.Now()
	rep := &SimulationReport{
		Report:   Report{Step: "simulation", Success: true},
		TestName: cfg.TestName,
		Seed:     cfg.Seed,
	}
	defer func() { rep.Duration = time.Since(start) }()

	if cfg.TestName == "" {
		return nil, engine.NewUserError("no test specified", nil).WithIP(target.QualifiedName())
	}
	if cfg.GUI {
		d.logger.Warn("dsim has no graphical mode, running in batch mode")
	}

	resultDir, err := d.resultDirectoryName(target, cfg)
	if err != nil {
		return nil, err
	}
	rep.ResultsPath = filepath.Join(d.dirs.results, resultDir)
	if err := os.MkdirAll(rep.ResultsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	log := filepath.Join(rep.ResultsPath, "sim.log")

	testClass, err := testClassName(target, cfg.TestName)
	if err != nil {
		return nil, err
	}
	args := []string{
		"-work", d.WorkPath(target),
		"-image", target.ImageName(),
		"-sv_seed", strconv.Itoa(cfg.Seed),
		"+UVM_TESTNAME=" + testClass,
		"+UVM_VERBOSITY=" + cfg.Verbosity.UVM(),
	}
	if cfg.MaxErrors > 0 {
		args = append(args, fmt.Sprintf("+UVM_MAX_QUIT_COUNT=%d,NO", cfg.MaxErrors))
	}
	if cfg.EnableWaves {
		args = append(args, "-waves", "waves.vcd")
	}
	if cfg.EnableCoverage {
		args = append(args, "-code-cov", "a", "-cov-db", "cov.db")
	}
	for _, so := range d.sharedObjects(target) {
		args = append(args, "-sv_lib", so)
	}
	args = append(args, plusArgs(cfg.Args, "+")...)
	args = append(args, d.settings().SimulationArguments...)
	args = append(args, "-l", log)

	job := d.job("simulate-"+target.ResultFileName(), "dsim", args, rep.ResultsPath)
	ok, err := d.run(ctx, sched, job, log, &rep.Report)
	if err != nil {
		return nil, err
	}
	rep.Success = ok
	return rep, nil
}

// Encrypt copies the source tree of target and encrypts every HDL file in the
// copy with dvlencrypt or dvhencrypt. The license is exported to the tools as
// MIO_LICENSE_ID and MIO_LICENSE_KEY.
func (d *DSim) Encrypt(ctx context.Context, target *ip.IP, cfg EncryptionConfig, sched scheduler.Scheduler) (*EncryptionReport, error) {
	start := time.Now()
	rep := &EncryptionReport{Report: Report{Step: "encryption", Success: true}}
	defer func() { rep.Duration = time.Since(start) }()

	keyPath := d.cfg.Encryption.KeyPaths["dsim"]
	if keyPath == "" {
		return nil, engine.NewUserError("no dsim encryption key configured (encryption.key_paths.dsim)", nil).
			WithCode(engine.ErrCodeValidation)
	}

	rep.OutputPath = filepath.Join(d.dirs.temp, target.InstallationDirectoryName()+".dsim")
	if err := os.RemoveAll(rep.OutputPath); err != nil {
		return nil, err
	}
	if err := os.CopyFS(rep.OutputPath, os.DirFS(target.SrcPath())); err != nil {
		return nil, fmt.Errorf("failed to copy sources of %s: %w", target, err)
	}

	set := &scheduler.JobSet{Name: "encrypt-" + target.ResultFileName()}
	err := filepath.WalkDir(target.SrcPath(), func(p string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		tool := encryptionTool(p)
		if tool == "" {
			return nil
		}
		rel, err := filepath.Rel(target.SrcPath(), p)
		if err != nil {
			return err
		}
		job := d.job("encrypt-"+rel, tool, []string{p, "-i", keyPath, "-o", filepath.Join(rep.OutputPath, rel)}, rep.OutputPath)
		job.Env["MIO_LICENSE_ID"] = strconv.Itoa(cfg.LicenseID)
		job.Env["MIO_LICENSE_KEY"] = cfg.LicenseKey
		set.Add(job)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources of %s: %w", target, err)
	}

	results, err := sched.DispatchSet(ctx, set, d.jobConfig)
	if err != nil {
		return nil, err
	}
	for i, res := range results {
		if res.ReturnCode != 0 {
			rep.Success = false
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s exited with %d: %s", set.Jobs[i].Name, res.ReturnCode, res.Stderr))
		}
	}
	return rep, nil
}

func encryptionTool(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sv", ".svh", ".v", ".vh":
		return "dvlencrypt"
	case ".vhd", ".vhdl":
		return "dvhencrypt"
	}
	return ""
}

// hdlSources is the HDL content of one IP as seen by DSim.
type hdlSources struct {
	dirs []string
	sv   []string
	vhdl []string
}

func (d *DSim) sources(p *ip.IP) hdlSources {
	if p.IsEncrypted() {
		return hdlSources{
			dirs: p.EncryptedHDLDirectories("dsim"),
			sv:   p.EncryptedTopSVFiles("dsim"),
			vhdl: p.EncryptedTopVHDLFiles("dsim"),
		}
	}
	return hdlSources{dirs: p.HDLDirectories(), sv: p.TopSVFiles(), vhdl: p.TopVHDLFiles()}
}

func (d *DSim) sharedObjects(target *ip.IP) []string {
	if target.IsEncrypted() {
		return target.EncryptedSharedObjects("dsim")
	}
	return target.SharedObjects()
}

func (d *DSim) withDependencies(target *ip.IP) ([]*ip.IP, error) {
	deps, err := d.db.DependenciesInOrder(target)
	if err != nil {
		return nil, err
	}
	return append(deps, target), nil
}

func (d *DSim) commonSVArgs(cfg CompilationConfig) []string {
	args := []string{"-uvm", d.cfg.LogicSimulation.UVMVersion, "-timescale", d.cfg.LogicSimulation.Timescale}
	if cfg.EnableWaves {
		args = append(args, "+acc+b")
	}
	if cfg.EnableCoverage {
		args = append(args, "-code-cov", "a")
	}
	if cfg.MaxErrors > 0 {
		args = append(args, "-error-limit", strconv.Itoa(cfg.MaxErrors))
	}
	args = append(args, plusArgs(cfg.Defines, "+define+")...)
	return args
}

func (d *DSim) svCompileJob(p *ip.IP, src hdlSources, cfg CompilationConfig, work, log string) *scheduler.Job {
	args := []string{"-work", work, "-lib", p.LibName()}
	for _, dep := range p.ResolvedDependencies() {
		args = append(args, "-L", dep.LibName())
	}
	args = append(args, d.commonSVArgs(cfg)...)
	for _, dir := range src.dirs {
		args = append(args, "+incdir+"+dir)
	}
	args = append(args, src.sv...)
	args = append(args, d.settings().CompilationSVArguments...)
	args = append(args, "-l", log)
	return d.job("compile-sv-"+p.ResultFileName(), "dvlcom", args, work)
}

func (d *DSim) vhdlCompileJob(p *ip.IP, src hdlSources, cfg CompilationConfig, work, log string) *scheduler.Job {
	args := []string{"-work", work, "-lib", p.LibName()}
	if cfg.MaxErrors > 0 {
		args = append(args, "-error-limit", strconv.Itoa(cfg.MaxErrors))
	}
	args = append(args, src.vhdl...)
	args = append(args, d.settings().CompilationVHDLArguments...)
	args = append(args, "-l", log)
	return d.job("compile-vhdl-"+p.ResultFileName(), "dvhcom", args, work)
}

func (d *DSim) settings() config.SimulatorSettings {
	return d.cfg.Simulator("dsim")
}

// job builds a DSim job with the installation on PATH.
func (d *DSim) job(name, binary string, args []string, wd string) *scheduler.Job {
	job := &scheduler.Job{
		Name:       name,
		WorkingDir: wd,
		Binary:     binary,
		Args:       args,
		Env:        map[string]string{},
	}
	s := d.settings()
	if s.InstallationPath != "" {
		job.PathPrefix = filepath.Join(s.InstallationPath, "bin")
		job.Env["DSIM_HOME"] = s.InstallationPath
	}
	if s.LicensePath != "" {
		job.Env["DSIM_LICENSE"] = s.LicensePath
	}
	return job
}

// run dispatches job and folds its log into rep. It reports whether the step
// succeeded: a zero exit status and no error or fatal message.
func (d *DSim) run(ctx context.Context, sched scheduler.Scheduler, job *scheduler.Job, log string, rep *Report) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(log), 0755); err != nil {
		return false, fmt.Errorf("failed to create log directory: %w", err)
	}
	d.logger.WithField("job", job.Name).WithField("scheduler", sched.Name()).Debug("dispatching")

	res, err := sched.Dispatch(ctx, job, d.jobConfig)
	if err != nil {
		return false, fmt.Errorf("%s: %w", job.Name, err)
	}
	rep.LogPaths = append(rep.LogPaths, log)
	if d.jobConfig.DryRun {
		return true, nil
	}

	summary, err := ParseLog(log, dsimErrorPrefix, dsimWarningPrefix, dsimFatalPrefix)
	if err != nil {
		return false, err
	}
	rep.merge(summary)
	return res.ReturnCode == 0 && len(summary.Errors) == 0 && len(summary.Fatals) == 0, nil
}

// resultDirectoryName renders the test_result_path_template setting.
func (d *DSim) resultDirectoryName(target *ip.IP, cfg SimulationConfig) (string, error) {
	tmpl, err := template.New("result").Parse(d.cfg.LogicSimulation.TestResultPathTemplate)
	if err != nil {
		return "", fmt.Errorf("invalid test_result_path_template: %w", err)
	}

	var args strings.Builder
	for _, arg := range plusArgs(cfg.Args, "") {
		args.WriteString("_" + strings.NewReplacer("=", "_", "/", "_").Replace(arg))
	}
	data := struct {
		IP   string
		Test string
		Seed int
		Args string
	}{target.ResultFileName(), cfg.TestName, cfg.Seed, args.String()}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("invalid test_result_path_template: %w", err)
	}
	return target.ResultFileName() + "_" + out.String(), nil
}

// testClassName renders the IP's tests_name_template for test. Both
// "{{ name }}" and "{{ .Name }}" placeholders are accepted.
func testClassName(target *ip.IP, test string) (string, error) {
	tmplText := target.Descriptor.HDLSrc.TestsNameTemplate
	if tmplText == "" {
		return test, nil
	}
	tmplText = strings.NewReplacer("{{ name }}", "{{ .Name }}", "{{name}}", "{{ .Name }}").Replace(tmplText)
	tmpl, err := template.New("test").Parse(tmplText)
	if err != nil {
		return "", fmt.Errorf("invalid tests_name_template of IP %s: %w", target, err)
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, struct{ Name string }{test}); err != nil {
		return "", fmt.Errorf("invalid tests_name_template of IP %s: %w", target, err)
	}
	return out.String(), nil
}

// plusArgs renders a map as sorted prefix+NAME[=VALUE] arguments.
func plusArgs(values map[string]string, prefix string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := values[k]; v != "" {
			out = append(out, prefix+k+"="+v)
		} else {
			out = append(out, prefix+k)
		}
	}
	return out
}
