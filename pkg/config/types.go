package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Configuration is the merged content of the mio.toml layers.
type Configuration struct {
	Project         Project         `mapstructure:"project" toml:"project"`
	Authentication  Authentication  `mapstructure:"authentication" toml:"authentication"`
	LogicSimulation LogicSimulation `mapstructure:"logic_simulation" toml:"logic_simulation"`
	Synthesis       RootedSection   `mapstructure:"synthesis" toml:"synthesis"`
	Lint            RootedSection   `mapstructure:"lint" toml:"lint"`
	IP              IPPaths         `mapstructure:"ip" toml:"ip"`
	Docs            RootedSection   `mapstructure:"docs" toml:"docs"`
	Encryption      Encryption      `mapstructure:"encryption" toml:"encryption"`
	Marketplace     Marketplace     `mapstructure:"marketplace" toml:"marketplace"`
	Scheduler       Scheduler       `mapstructure:"scheduler" toml:"scheduler"`
	Telemetry       Telemetry       `mapstructure:"telemetry" toml:"telemetry"`
}

// Project identifies the project.
type Project struct {
	Sync      bool   `mapstructure:"sync" toml:"sync"`
	SyncID    int    `mapstructure:"sync_id" toml:"sync_id,omitempty" validate:"gte=0"`
	Name      string `mapstructure:"name" toml:"name,omitempty" validate:"omitempty,mio_name"`
	FullName  string `mapstructure:"full_name" toml:"full_name,omitempty"`
	LocalMode bool   `mapstructure:"local_mode" toml:"local_mode"`
}

// Authentication controls marketplace access.
type Authentication struct {
	Offline bool `mapstructure:"offline" toml:"offline"`
}

// LogicSimulation configures the simulation flow.
type LogicSimulation struct {
	RootPath                string `mapstructure:"root_path" toml:"root_path" validate:"required,posix_path"`
	RegressionDirectoryName string `mapstructure:"regression_directory_name" toml:"regression_directory_name" validate:"required,posix_dir_name"`
	ResultsDirectoryName    string `mapstructure:"results_directory_name" toml:"results_directory_name" validate:"required,posix_dir_name"`
	LogsDirectory           string `mapstructure:"logs_directory" toml:"logs_directory" validate:"required,posix_dir_name"`
	TestResultPathTemplate  string `mapstructure:"test_result_path_template" toml:"test_result_path_template" validate:"required"`
	UVMVersion              string `mapstructure:"uvm_version" toml:"uvm_version" validate:"required,oneof=1.2 1.1d 1.1c 1.1b 1.1a 1.0"`
	Timescale               string `mapstructure:"timescale" toml:"timescale" validate:"required,timescale"`
	DefaultSimulator        string `mapstructure:"default_simulator" toml:"default_simulator,omitempty" validate:"omitempty,oneof=dsim vivado vcs xcelium questa riviera"`

	// Simulators holds per-simulator settings keyed by simulator name.
	Simulators map[string]SimulatorSettings `mapstructure:"simulators" toml:"simulators,omitempty" validate:"dive"`
}

// SimulatorSettings holds the installation and default arguments of one simulator.
type SimulatorSettings struct {
	InstallationPath                   string   `mapstructure:"installation_path" toml:"installation_path,omitempty" validate:"omitempty,posix_path"`
	LicensePath                        string   `mapstructure:"license_path" toml:"license_path,omitempty" validate:"omitempty,posix_path"`
	CompilationSVArguments             []string `mapstructure:"compilation_sv_arguments" toml:"compilation_sv_arguments,omitempty"`
	CompilationVHDLArguments           []string `mapstructure:"compilation_vhdl_arguments" toml:"compilation_vhdl_arguments,omitempty"`
	ElaborationArguments               []string `mapstructure:"elaboration_arguments" toml:"elaboration_arguments,omitempty"`
	CompilationAndElaborationArguments []string `mapstructure:"compilation_and_elaboration_arguments" toml:"compilation_and_elaboration_arguments,omitempty"`
	SimulationArguments                []string `mapstructure:"simulation_arguments" toml:"simulation_arguments,omitempty"`
}

// RootedSection is a flow section that only declares its root directory.
type RootedSection struct {
	RootPath string `mapstructure:"root_path" toml:"root_path" validate:"required,posix_path"`
}

// IPPaths lists where IPs are discovered.
type IPPaths struct {
	GlobalPaths []string `mapstructure:"global_paths" toml:"global_paths" validate:"dive,posix_path"`
	LocalPaths  []string `mapstructure:"local_paths" toml:"local_paths" validate:"required,dive,posix_path"`
}

// Encryption holds the key files used to encrypt licensed IPs, keyed by simulator.
type Encryption struct {
	KeyPaths map[string]string `mapstructure:"key_paths" toml:"key_paths,omitempty" validate:"dive,posix_path"`
}

// Marketplace locates the remote marketplace.
type Marketplace struct {
	URL     string `mapstructure:"url" toml:"url" validate:"required,url"`
	Timeout int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" validate:"gte=0"`
}

// Scheduler selects and configures job schedulers.
type Scheduler struct {
	Default     string     `mapstructure:"default" toml:"default,omitempty" validate:"omitempty,oneof=local ssh lsf grid_engine"`
	MaxParallel int        `mapstructure:"max_parallel" toml:"max_parallel" validate:"gte=0"`
	SSH         SSHTarget  `mapstructure:"ssh" toml:"ssh"`
	LSF         QueueFlags `mapstructure:"lsf" toml:"lsf"`
	GridEngine  QueueFlags `mapstructure:"grid_engine" toml:"grid_engine"`
}

// SSHTarget is the remote host used by the ssh scheduler.
type SSHTarget struct {
	Host       string `mapstructure:"host" toml:"host,omitempty"`
	Port       int    `mapstructure:"port" toml:"port,omitempty" validate:"gte=0,lte=65535"`
	User       string `mapstructure:"user" toml:"user,omitempty"`
	KeyPath    string `mapstructure:"key_path" toml:"key_path,omitempty" validate:"omitempty,posix_path"`
	WorkingDir string `mapstructure:"working_dir" toml:"working_dir,omitempty"`
}

// QueueFlags holds extra flags passed to a batch queue submission command.
type QueueFlags struct {
	Queue string   `mapstructure:"queue" toml:"queue,omitempty"`
	Flags []string `mapstructure:"flags" toml:"flags,omitempty"`
}

// Telemetry configures metrics and tracing output.
type Telemetry struct {
	MetricsTextfile bool   `mapstructure:"metrics_textfile" toml:"metrics_textfile"`
	TracingExporter string `mapstructure:"tracing_exporter" toml:"tracing_exporter" validate:"omitempty,oneof=none stdout otlp"`
	TracingEndpoint string `mapstructure:"tracing_endpoint" toml:"tracing_endpoint,omitempty"`
}

var configValidator = NewValidator()

// Validate checks the configuration against its schema.
func (c *Configuration) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Simulator returns the settings for one simulator, zero if none are configured.
func (c *Configuration) Simulator(name string) SimulatorSettings {
	return c.LogicSimulation.Simulators[name]
}

// WriteTOML writes the configuration to path.
func (c *Configuration) WriteTOML(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
