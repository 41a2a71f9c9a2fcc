package scheduler

import (
	"fmt"

	"github.com/mooreio/mio/pkg/engine"
)

// Registry holds the schedulers known to a run in registration order.
type Registry struct {
	schedulers []Scheduler
	byName     map[string]Scheduler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Scheduler)}
}

// Register adds s. Names are unique.
func (r *Registry) Register(s Scheduler) error {
	if _, exists := r.byName[s.Name()]; exists {
		return fmt.Errorf("scheduler %s is already registered", s.Name())
	}
	r.schedulers = append(r.schedulers, s)
	r.byName[s.Name()] = s
	return nil
}

// Get returns the scheduler called name.
func (r *Registry) Get(name string) (Scheduler, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, engine.NewUserError(fmt.Sprintf("no job scheduler named '%s'", name), nil).
			WithCode(engine.ErrCodeNotFound)
	}
	return s, nil
}

// Names returns every registered name in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schedulers))
	for _, s := range r.schedulers {
		names = append(names, s.Name())
	}
	return names
}

// Available returns the schedulers that can currently run jobs.
func (r *Registry) Available() []Scheduler {
	var out []Scheduler
	for _, s := range r.schedulers {
		if s.IsAvailable() {
			out = append(out, s)
		}
	}
	return out
}

// Default returns the preferred scheduler, or the first available one in
// registration order when preferred is empty. A preferred scheduler that is
// not available is an error.
func (r *Registry) Default(preferred string) (Scheduler, error) {
	if preferred != "" {
		s, err := r.Get(preferred)
		if err != nil {
			return nil, err
		}
		if !s.IsAvailable() {
			return nil, engine.NewUserError(fmt.Sprintf("job scheduler '%s' is not available on this machine", preferred), nil).
				WithCode(engine.ErrCodeValidation)
		}
		return s, nil
	}
	if available := r.Available(); len(available) > 0 {
		return available[0], nil
	}
	return nil, engine.NewUserError("no job scheduler is available", nil).WithCode(engine.ErrCodeNotFound)
}
