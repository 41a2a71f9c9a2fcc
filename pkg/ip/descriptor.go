package ip

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
)

// Descriptor is the content of an ip.yml file.
type Descriptor struct {
	IP           About             `yaml:"ip" validate:"required"`
	Dependencies map[string]string `yaml:"dependencies,omitempty" validate:"dive,keys,mio_ip_definition,endkeys,semver_spec"`
	Structure    Structure         `yaml:"structure" validate:"required"`
	HDLSrc       HDLSource         `yaml:"hdl_src" validate:"required"`
	DUT          *DesignUnderTest  `yaml:"dut,omitempty" validate:"omitempty"`
	Targets      map[string]Target `yaml:"targets,omitempty" validate:"dive,keys,mio_name,endkeys"`
}

// About holds the identity of an IP.
type About struct {
	Sync         bool     `yaml:"sync"`
	SyncID       int      `yaml:"sync_id,omitempty" validate:"gte=0"`
	SyncRevision string   `yaml:"sync_revision,omitempty"`
	Encrypted    []string `yaml:"encrypted,omitempty" validate:"dive,mio_name"`
	MLicensed    bool     `yaml:"mlicensed,omitempty"`
	PkgType      PkgType  `yaml:"pkg_type" validate:"required,oneof=dv_lib dv_agent dv_env dv_tb lib block ss fpga chip system custom"`
	Vendor       string   `yaml:"vendor,omitempty" validate:"omitempty,mio_name"`
	Name         string   `yaml:"name" validate:"required,mio_name"`
	FullName     string   `yaml:"full_name"`
	Version      string   `yaml:"version" validate:"required,semver_version"`
}

// Structure holds the paths of an IP relative to its descriptor.
type Structure struct {
	HDLSrcPath   string `yaml:"hdl_src_path" validate:"required,posix_path"`
	ScriptsPath  string `yaml:"scripts_path,omitempty" validate:"omitempty,posix_path"`
	DocsPath     string `yaml:"docs_path,omitempty" validate:"omitempty,posix_path"`
	ExamplesPath string `yaml:"examples_path,omitempty" validate:"omitempty,posix_path"`
}

// HDLSource lists the HDL content of an IP relative to its source path.
type HDLSource struct {
	Directories       []string `yaml:"directories" validate:"dive,posix_path"`
	TopSVFiles        []string `yaml:"top_sv_files,omitempty" validate:"dive,posix_path"`
	TopVHDLFiles      []string `yaml:"top_vhdl_files,omitempty" validate:"dive,posix_path"`
	Top               []string `yaml:"top,omitempty" validate:"dive,mio_name"`
	TestsPath         string   `yaml:"tests_path,omitempty" validate:"omitempty,posix_path"`
	TestsNameTemplate string   `yaml:"tests_name_template,omitempty"`
	SOLibs            []string `yaml:"so_libs,omitempty" validate:"dive,posix_path"`
}

// DesignUnderTest binds a testbench to the design it verifies.
type DesignUnderTest struct {
	Type    DutType `yaml:"type" validate:"required,oneof=ip fsoc vivado"`
	Name    string  `yaml:"name" validate:"required"`
	Version string  `yaml:"version,omitempty" validate:"omitempty,semver_spec"`
	Target  string  `yaml:"target,omitempty" validate:"omitempty,mio_name"`
}

// Target holds per-stage parameter overrides.
type Target struct {
	Cmp  map[string]ParameterValue `yaml:"cmp,omitempty" validate:"dive,keys,mio_name,endkeys"`
	Elab map[string]ParameterValue `yaml:"elab,omitempty" validate:"dive,keys,mio_name,endkeys"`
	Sim  map[string]ParameterValue `yaml:"sim,omitempty" validate:"dive,keys,mio_name,endkeys"`
}

// ParameterValue is a target parameter: a positive integer or a boolean.
type ParameterValue struct {
	Type ParameterType
	Int  int
	Bool bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *ParameterValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!bool":
		v.Type = ParameterTypeBool
		return node.Decode(&v.Bool)
	case "!!int":
		v.Type = ParameterTypeInt
		if err := node.Decode(&v.Int); err != nil {
			return err
		}
		if v.Int <= 0 {
			return fmt.Errorf("line %d: parameter must be a positive integer, got %d", node.Line, v.Int)
		}
		return nil
	default:
		return fmt.Errorf("line %d: parameter must be an integer or a boolean, got %q", node.Line, node.Value)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (v ParameterValue) MarshalYAML() (interface{}, error) {
	if v.Type == ParameterTypeBool {
		return v.Bool, nil
	}
	return v.Int, nil
}

// String renders the value as it would be passed to a simulator.
func (v ParameterValue) String() string {
	if v.Type == ParameterTypeBool {
		if v.Bool {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("%d", v.Int)
}

var descriptorValidator = config.NewValidator()

// LoadDescriptor reads and validates an ip.yml file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read IP descriptor %s: %w", path, err)
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, engine.NewDomainError(fmt.Sprintf("IP definition at '%s' is malformed", path), err).
			WithCode(engine.ErrCodeMalformedDescriptor).
			WithDetail("file", path)
	}
	return d, nil
}

// ParseDescriptor decodes and validates descriptor content.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the descriptor against its schema.
func (d *Descriptor) Validate() error {
	if err := descriptorValidator.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' validation", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "\n  "))
		}
		return err
	}
	return nil
}

// SemVer returns the parsed version of the IP.
func (a About) SemVer() *semver.Version {
	v, err := semver.NewVersion(a.Version)
	if err != nil {
		// validated on load
		return semver.MustParse("0.0.0")
	}
	return v
}

// Save writes the descriptor to path.
func (d *Descriptor) Save(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode IP descriptor: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
