package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ProjectFileName is the name of the project configuration file.
const ProjectFileName = "mio.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MIO"

//go:embed defaults.toml
var defaultsTOML []byte

// ErrProjectFileNotFound is returned when no mio.toml exists above the working directory.
var ErrProjectFileNotFound = errors.New("could not locate project 'mio.toml'")

// Loader reads the configuration layers.
type Loader struct {
	home string
}

// NewLoader creates a loader rooted at the mio home directory.
func NewLoader(home string) *Loader {
	return &Loader{home: home}
}

// HomeDir returns $MIO_HOME, or ~/.mio.
func HomeDir() string {
	if home := os.Getenv(EnvPrefix + "_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".mio"
	}
	return filepath.Join(userHome, ".mio")
}

// UserConfigPath returns the path of the user configuration layer.
func (l *Loader) UserConfigPath() string {
	return filepath.Join(l.home, ProjectFileName)
}

// LoadDefault returns the embedded default layer.
func (l *Loader) LoadDefault() (map[string]any, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(defaultsTOML)); err != nil {
		return nil, fmt.Errorf("failed to load default configuration: %w", err)
	}
	return v.AllSettings(), nil
}

// LoadUser returns the user layer. An empty user configuration is created when
// none exists.
func (l *Loader) LoadUser() (map[string]any, error) {
	path := l.UserConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeEmptyTOML(path); err != nil {
			return nil, fmt.Errorf("failed to create user configuration at '%s': %w", path, err)
		}
		return map[string]any{}, nil
	}
	return l.LoadFile(path)
}

// LoadFile returns the layer stored in one mio.toml file.
func (l *Loader) LoadFile(path string) (map[string]any, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration at '%s': %w", path, err)
	}
	return v.AllSettings(), nil
}

// Merge merges the layers in order and applies MIO_ environment overrides.
func Merge(layers ...map[string]any) (*Configuration, error) {
	v := viper.New()
	v.SetConfigType("toml")
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if err := v.MergeConfigMap(layer); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &cfg, nil
}

// LocateProjectFile walks up from dir to the filesystem root looking for mio.toml.
func LocateProjectFile(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(current, ProjectFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w from '%s'", ErrProjectFileNotFound, dir)
		}
		current = parent
	}
}

// CheckSyntax reports TOML syntax errors in a configuration file with their position.
func CheckSyntax(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("%s:%d:%d: %s", path, row, col, derr.Error())
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func writeEmptyTOML(path string) error {
	data, err := toml.Marshal(map[string]any{})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
