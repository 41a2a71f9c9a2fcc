package service

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/scheduler"
)

// Verbosity is the UVM reporting verbosity of a simulation.
type Verbosity string

const (
	VerbosityNone   Verbosity = "none"
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
	VerbosityDebug  Verbosity = "debug"
)

// ParseVerbosity accepts the names above, case insensitive.
func ParseVerbosity(s string) (Verbosity, error) {
	v := Verbosity(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VerbosityNone, VerbosityLow, VerbosityMedium, VerbosityHigh, VerbosityDebug:
		return v, nil
	}
	return "", fmt.Errorf("invalid verbosity '%s': expected none, low, medium, high or debug", s)
}

// UVM returns the UVM_* constant name.
func (v Verbosity) UVM() string {
	if v == "" {
		v = VerbosityMedium
	}
	return "UVM_" + strings.ToUpper(string(v))
}

// CompilationConfig controls Compile and the compile half of CompileAndElaborate.
type CompilationConfig struct {
	MaxErrors      int
	EnableWaves    bool
	EnableCoverage bool
	// Defines become +define+NAME[=VALUE].
	Defines map[string]string
}

// ElaborationConfig controls Elaborate.
type ElaborationConfig struct {
	MaxErrors int
}

// SimulationConfig controls Simulate.
type SimulationConfig struct {
	TestName       string
	Seed           int
	Verbosity      Verbosity
	MaxErrors      int
	GUI            bool
	EnableWaves    bool
	EnableCoverage bool
	// Args become +NAME[=VALUE] plusargs.
	Args map[string]string
}

// EncryptionConfig carries the license the sources are encrypted for.
type EncryptionConfig struct {
	LicenseID  int
	LicenseKey string
}

// LogicSimulator drives a digital logic simulator. Every step runs through
// the given scheduler.
type LogicSimulator interface {
	Service

	Compile(ctx context.Context, target *ip.IP, cfg CompilationConfig, sched scheduler.Scheduler) (*Report, error)
	Elaborate(ctx context.Context, target *ip.IP, cfg ElaborationConfig, sched scheduler.Scheduler) (*Report, error)
	CompileAndElaborate(ctx context.Context, target *ip.IP, cfg CompilationConfig, sched scheduler.Scheduler) (*Report, error)
	Simulate(ctx context.Context, target *ip.IP, cfg SimulationConfig, sched scheduler.Scheduler) (*SimulationReport, error)
	Encrypt(ctx context.Context, target *ip.IP, cfg EncryptionConfig, sched scheduler.Scheduler) (*EncryptionReport, error)
}

// Report summarizes one simulator step.
type Report struct {
	Step     string
	Success  bool
	Errors   []string
	Warnings []string
	Fatals   []string
	LogPaths []string
	Duration time.Duration
}

// NumErrors returns the number of error messages.
func (r *Report) NumErrors() int { return len(r.Errors) }

// NumWarnings returns the number of warning messages.
func (r *Report) NumWarnings() int { return len(r.Warnings) }

// NumFatals returns the number of fatal messages.
func (r *Report) NumFatals() int { return len(r.Fatals) }

// merge folds the messages of one log into r.
func (r *Report) merge(l *LogSummary) {
	r.Errors = append(r.Errors, l.Errors...)
	r.Warnings = append(r.Warnings, l.Warnings...)
	r.Fatals = append(r.Fatals, l.Fatals...)
}

// SimulationReport adds the test identity to a Report.
type SimulationReport struct {
	Report
	TestName    string
	Seed        int
	ResultsPath string
}

// EncryptionReport points at the encrypted source tree.
type EncryptionReport struct {
	Report
	OutputPath string
}

// LogSummary holds the classified messages of a simulator log.
type LogSummary struct {
	Errors   []string
	Warnings []string
	Fatals   []string
}

// ParseLog scans a log for lines starting with the given error, warning and
// fatal prefixes. A missing log yields an empty summary.
func ParseLog(path, errorPrefix, warningPrefix, fatalPrefix string) (*LogSummary, error) {
	summary := &LogSummary{}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, errorPrefix):
			summary.Errors = append(summary.Errors, line)
		case strings.HasPrefix(line, warningPrefix):
			summary.Warnings = append(summary.Warnings, line)
		case strings.HasPrefix(line, fatalPrefix):
			summary.Fatals = append(summary.Fatals, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log %s: %w", path, err)
	}
	return summary, nil
}

// Paths locates the project a service works in.
type Paths struct {
	// ProjectDir holds mio.toml.
	ProjectDir string
	// MioDir is the project's .mio directory.
	MioDir string
}

// simulatorDirs is the directory layout shared by logic simulators.
type simulatorDirs struct {
	work       string
	temp       string
	simRoot    string
	results    string
	regression string
	logs       string
	cmpLogs    string
	elabLogs   string
	caeLogs    string
}

func newSimulatorDirs(name string, paths Paths, cfg config.LogicSimulation) simulatorDirs {
	work := filepath.Join(paths.MioDir, "logic_simulation", name)
	simRoot := filepath.Join(paths.ProjectDir, cfg.RootPath)
	logs := filepath.Join(simRoot, cfg.LogsDirectory)
	return simulatorDirs{
		work:       work,
		temp:       filepath.Join(work, "temp"),
		simRoot:    simRoot,
		results:    filepath.Join(simRoot, cfg.ResultsDirectoryName),
		regression: filepath.Join(simRoot, cfg.RegressionDirectoryName),
		logs:       logs,
		cmpLogs:    filepath.Join(logs, "compilation"),
		elabLogs:   filepath.Join(logs, "elaboration"),
		caeLogs:    filepath.Join(logs, "compilation_and_elaboration"),
	}
}

func (d simulatorDirs) all() []string {
	return []string{d.work, d.temp, d.simRoot, d.results, d.regression, d.logs, d.cmpLogs, d.elabLogs, d.caeLogs}
}

func (d simulatorDirs) create() error {
	for _, dir := range d.all() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
