package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mooreio/mio/pkg/engine"
)

type stubService struct {
	name string
	typ  Type
}

func (s *stubService) Name() string                    { return s.name }
func (s *stubService) FullName() string                { return s.name }
func (s *stubService) Type() Type                      { return s.typ }
func (s *stubService) IsAvailable() bool               { return true }
func (s *stubService) CreateDirectoryStructure() error { return nil }
func (s *stubService) CreateFiles() error              { return nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubService{name: "verible", typ: TypeLinting}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&stubService{name: "verible", typ: TypeLinting}); err == nil {
		t.Error("Expected a duplicate registration to fail")
	}
	if err := reg.Register(&stubService{name: "verible", typ: TypeCodeGeneration}); err != nil {
		t.Errorf("Expected the same name with another type to register, got %v", err)
	}
	if len(reg.All()) != 2 {
		t.Errorf("Expected 2 services, got %d", len(reg.All()))
	}

	s, err := reg.Find(TypeLinting, "verible")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if s.Type() != TypeLinting {
		t.Errorf("Expected linting service, got %s", s.Type())
	}

	if _, err := reg.Find(TypeLogicSimulation, "verible"); !engine.HasCode(err, engine.ErrCodeNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := reg.FindLogicSimulator("dsim"); err == nil {
		t.Error("Expected no logic simulator")
	}
}

func TestParseLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmp.log")
	content := "=N:[Info] starting\n" +
		"=W:[Width] truncation\n" +
		"  =E:[Undef] unknown identifier foo\n" +
		"=F:[Internal] crashed\n" +
		"=W:[Width] extension\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	summary, err := ParseLog(path, "=E:", "=W:", "=F:")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(summary.Errors) != 1 || summary.Errors[0] != "=E:[Undef] unknown identifier foo" {
		t.Errorf("Expected one trimmed error, got %v", summary.Errors)
	}
	if len(summary.Warnings) != 2 {
		t.Errorf("Expected 2 warnings, got %d", len(summary.Warnings))
	}
	if len(summary.Fatals) != 1 {
		t.Errorf("Expected 1 fatal, got %d", len(summary.Fatals))
	}

	missing, err := ParseLog(filepath.Join(t.TempDir(), "none.log"), "=E:", "=W:", "=F:")
	if err != nil || len(missing.Errors) != 0 {
		t.Errorf("Expected an empty summary for a missing log, got %v, %v", missing, err)
	}
}

func TestParseVerbosity(t *testing.T) {
	v, err := ParseVerbosity("HIGH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.UVM() != "UVM_HIGH" {
		t.Errorf("Expected UVM_HIGH, got %s", v.UVM())
	}
	if Verbosity("").UVM() != "UVM_MEDIUM" {
		t.Errorf("Expected medium by default, got %s", Verbosity("").UVM())
	}
	if _, err := ParseVerbosity("full"); err == nil {
		t.Error("Expected an error for an unknown verbosity")
	}
}

func TestPlusArgs(t *testing.T) {
	got := plusArgs(map[string]string{"B": "2", "A": ""}, "+define+")
	if len(got) != 2 || got[0] != "+define+A" || got[1] != "+define+B=2" {
		t.Errorf("Expected sorted defines, got %v", got)
	}
}
