package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const projectTOML = `
[project]
name = "chip_proj"
local_mode = true

[ip]
local_paths = ["rtl", "dv"]

[logic_simulation]
timescale = "1ps/1fs"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestDefaultsAreValid(t *testing.T) {
	loader := NewLoader(t.TempDir())
	defaults, err := loader.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}

	cfg, err := Merge(defaults)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg.LogicSimulation.Timescale != "1ns/1ps" {
		t.Errorf("Expected timescale 1ns/1ps, got %s", cfg.LogicSimulation.Timescale)
	}
	if cfg.Scheduler.Default != "local" {
		t.Errorf("Expected default scheduler local, got %s", cfg.Scheduler.Default)
	}
}

func TestMergeLayerOrder(t *testing.T) {
	home := t.TempDir()
	loader := NewLoader(home)
	defaults, err := loader.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}

	writeFile(t, loader.UserConfigPath(), "[logic_simulation]\ntimescale = \"10ns/1ns\"\ndefault_simulator = \"vcs\"\n")
	user, err := loader.LoadUser()
	if err != nil {
		t.Fatalf("LoadUser failed: %v", err)
	}

	projectPath := filepath.Join(t.TempDir(), ProjectFileName)
	writeFile(t, projectPath, projectTOML)
	project, err := loader.LoadFile(projectPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	cfg, err := Merge(defaults, user, project)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if cfg.LogicSimulation.Timescale != "1ps/1fs" {
		t.Errorf("Expected project timescale to win, got %s", cfg.LogicSimulation.Timescale)
	}
	if cfg.LogicSimulation.DefaultSimulator != "vcs" {
		t.Errorf("Expected user simulator vcs, got %s", cfg.LogicSimulation.DefaultSimulator)
	}
	if cfg.LogicSimulation.RootPath != "sim" {
		t.Errorf("Expected default root path sim, got %s", cfg.LogicSimulation.RootPath)
	}
	if len(cfg.IP.LocalPaths) != 2 || cfg.IP.LocalPaths[0] != "rtl" {
		t.Errorf("Expected local paths [rtl dv], got %v", cfg.IP.LocalPaths)
	}
	if cfg.Project.Name != "chip_proj" {
		t.Errorf("Expected project name chip_proj, got %s", cfg.Project.Name)
	}
}

func TestMergeEnvironmentOverride(t *testing.T) {
	t.Setenv("MIO_MARKETPLACE_URL", "http://127.0.0.1:9999/api")

	defaults, err := NewLoader(t.TempDir()).LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	cfg, err := Merge(defaults)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if cfg.Marketplace.URL != "http://127.0.0.1:9999/api" {
		t.Errorf("Expected env override, got %s", cfg.Marketplace.URL)
	}
}

func TestLoadUserCreatesEmptyFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "home"))
	layer, err := loader.LoadUser()
	if err != nil {
		t.Fatalf("LoadUser failed: %v", err)
	}
	if len(layer) != 0 {
		t.Errorf("Expected empty layer, got %v", layer)
	}
	if _, err := os.Stat(loader.UserConfigPath()); err != nil {
		t.Errorf("Expected user configuration to be created: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	defaults, err := NewLoader(t.TempDir()).LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"bad timescale", func(c *Configuration) { c.LogicSimulation.Timescale = "1ns" }},
		{"bad uvm version", func(c *Configuration) { c.LogicSimulation.UVMVersion = "2.0" }},
		{"bad project name", func(c *Configuration) { c.Project.Name = "my-project" }},
		{"bad scheduler", func(c *Configuration) { c.Scheduler.Default = "slurm" }},
		{"no local paths", func(c *Configuration) { c.IP.LocalPaths = nil }},
		{"bad simulator", func(c *Configuration) { c.LogicSimulation.DefaultSimulator = "iverilog" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Merge(defaults)
			if err != nil {
				t.Fatalf("Merge failed: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestLocateProjectFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ProjectFileName), projectTOML)
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	path, err := LocateProjectFile(deep)
	if err != nil {
		t.Fatalf("LocateProjectFile failed: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(root, ProjectFileName))
	if path != want {
		t.Errorf("Expected %s, got %s", want, path)
	}
}

func TestLocateProjectFileNotFound(t *testing.T) {
	_, err := LocateProjectFile(t.TempDir())
	if !errors.Is(err, ErrProjectFileNotFound) {
		t.Errorf("Expected ErrProjectFileNotFound, got %v", err)
	}
}

func TestCheckSyntax(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, good, projectTOML)
	writeFile(t, bad, "[project\nname = \"x\"\n")

	if err := CheckSyntax(good); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := CheckSyntax(bad); err == nil {
		t.Error("Expected syntax error")
	}
}

func TestWriteTOMLRoundTrip(t *testing.T) {
	loader := NewLoader(t.TempDir())
	defaults, err := loader.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	cfg, err := Merge(defaults)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	cfg.Project.Name = "written"

	path := filepath.Join(t.TempDir(), ProjectFileName)
	if err := cfg.WriteTOML(path); err != nil {
		t.Fatalf("WriteTOML failed: %v", err)
	}
	layer, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	back, err := Merge(layer)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if back.Project.Name != "written" {
		t.Errorf("Expected project name written, got %s", back.Project.Name)
	}
}

func TestUserData(t *testing.T) {
	path := UserFilePath(t.TempDir())

	u, err := LoadUser(path)
	if err != nil {
		t.Fatalf("LoadUser failed: %v", err)
	}
	if u.Authenticated {
		t.Error("Expected fresh user to be unauthenticated")
	}

	u.Username = "jdoe"
	u.Token = "abc"
	u.Authenticated = true
	u.Password = "secret"
	if err := u.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("Expected password not to be persisted")
	}

	loaded, err := LoadUser(path)
	if err != nil {
		t.Fatalf("LoadUser failed: %v", err)
	}
	if !loaded.Authenticated || loaded.Username != "jdoe" || loaded.Token != "abc" {
		t.Errorf("Expected saved user, got %+v", loaded)
	}

	loaded.Logout()
	if loaded.Authenticated || loaded.Token != "" {
		t.Errorf("Expected logged out user, got %+v", loaded)
	}
}

func TestValidatorTags(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		tag   string
		value string
		valid bool
	}{
		{"mio_name", "uart_agent", true},
		{"mio_name", "uart-agent", false},
		{"mio_ip_definition", "acme/uart", true},
		{"mio_ip_definition", "uart", true},
		{"mio_ip_definition", "a/b/c", false},
		{"semver_version", "1.2.3", true},
		{"semver_version", "1.2", false},
		{"semver_spec", ">=1.0.0, <2.0.0", true},
		{"semver_spec", "==1.0.0", true},
		{"semver_spec", "not a spec", false},
		{"timescale", "1ns/1ps", true},
		{"timescale", "1ns/1s", false},
		{"posix_path", "rtl/src", true},
		{"posix_dir_name", "results", true},
		{"posix_dir_name", "a/b", false},
	}

	for _, tt := range tests {
		err := v.Var(tt.value, tt.tag)
		if tt.valid && err != nil {
			t.Errorf("Expected %q to pass %s, got %v", tt.value, tt.tag, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("Expected %q to fail %s", tt.value, tt.tag)
		}
	}
}

func TestNormalizeVersionSpec(t *testing.T) {
	tests := map[string]string{
		"":         "*",
		"  ":       "*",
		"==1.0.0":  "=1.0.0",
		">=1.0.0":  ">=1.0.0",
		" ^2.1.0 ": "^2.1.0",
	}
	for in, want := range tests {
		if got := NormalizeVersionSpec(in); got != want {
			t.Errorf("NormalizeVersionSpec(%q): expected %q, got %q", in, want, got)
		}
	}
}
