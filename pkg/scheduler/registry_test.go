package scheduler

import (
	"context"
	"slices"
	"testing"

	"github.com/mooreio/mio/pkg/engine"
)

type stubScheduler struct {
	name      string
	available bool
}

func (s *stubScheduler) Name() string      { return s.name }
func (s *stubScheduler) IsAvailable() bool { return s.available }
func (s *stubScheduler) Dispatch(ctx context.Context, job *Job, cfg Configuration) (*Result, error) {
	return &Result{JobName: job.Name}, nil
}
func (s *stubScheduler) DispatchSet(ctx context.Context, set *JobSet, cfg Configuration) ([]*Result, error) {
	return dispatchPool(ctx, set, cfg, s.Dispatch)
}

func mustRegister(t *testing.T, r *Registry, s Scheduler) {
	t.Helper()
	if err := r.Register(s); err != nil {
		t.Fatalf("Failed to register %s: %v", s.Name(), err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubScheduler{name: "lsf"})
	mustRegister(t, r, &stubScheduler{name: "local", available: true})
	if err := r.Register(&stubScheduler{name: "local"}); err == nil {
		t.Error("Expected duplicate registration to fail")
	}

	if names := r.Names(); !slices.Equal(names, []string{"lsf", "local"}) {
		t.Errorf("Expected [lsf local], got %v", names)
	}
	if n := len(r.Available()); n != 1 {
		t.Errorf("Expected 1 available scheduler, got %d", n)
	}

	s, err := r.Default("")
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if s.Name() != "local" {
		t.Errorf("Expected local, got %s", s.Name())
	}

	s, err = r.Get("lsf")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s.Name() != "lsf" {
		t.Errorf("Expected lsf, got %s", s.Name())
	}

	_, err = r.Get("slurm")
	if !engine.HasCode(err, engine.ErrCodeNotFound) {
		t.Errorf("Expected a not-found error, got %v", err)
	}
}

func TestRegistryDefaultPreferred(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, &stubScheduler{name: "local", available: true})
	mustRegister(t, r, &stubScheduler{name: "ssh", available: true})
	mustRegister(t, r, &stubScheduler{name: "lsf"})

	s, err := r.Default("ssh")
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if s.Name() != "ssh" {
		t.Errorf("Expected ssh, got %s", s.Name())
	}

	if _, err := r.Default("lsf"); !engine.IsUser(err) {
		t.Errorf("Expected a user error for an unavailable scheduler, got %v", err)
	}
	if _, err := NewRegistry().Default(""); err == nil {
		t.Error("Expected an error from an empty registry")
	}
}
