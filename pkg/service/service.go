// Package service adapts the EDA tools mio drives. A Service owns a part of
// the project tree and knows how to invoke one tool; logic simulators also
// compile, elaborate, simulate and encrypt IPs through a job scheduler.
package service

import (
	"fmt"

	"github.com/mooreio/mio/pkg/engine"
)

// Type classifies services.
type Type string

const (
	TypeUnknown                     Type = "unknown"
	TypeCustom                      Type = "custom"
	TypePackageManagement           Type = "package_management"
	TypeLogicSimulation             Type = "logic_simulation"
	TypeLogicEmulation              Type = "logic_emulation"
	TypeLogicSynthesis              Type = "logic_synthesis"
	TypeSPICESimulation             Type = "spice_simulation"
	TypeFormalVerification          Type = "formal_verification"
	TypePlaceAndRoute               Type = "place_and_route"
	TypeCodeGeneration              Type = "code_generation"
	TypeProductVerification         Type = "product_verification"
	TypeLinting                     Type = "linting"
	TypeStaticTimingAnalysis        Type = "static_timing_analysis"
	TypeDesignForTest               Type = "design_for_test"
	TypeClockDomainCrossingAnalysis Type = "clock_domain_crossing_analysis"
)

// Service is one tool integration.
type Service interface {
	Name() string
	FullName() string
	Type() Type
	IsAvailable() bool

	// CreateDirectoryStructure creates the directories the service writes to.
	CreateDirectoryStructure() error
	CreateFiles() error
}

// Registry holds the services known to a run.
type Registry struct {
	services []Service
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds s. A type and name pair is registered once.
func (r *Registry) Register(s Service) error {
	for _, existing := range r.services {
		if existing.Type() == s.Type() && existing.Name() == s.Name() {
			return fmt.Errorf("service %s of type %s is already registered", s.Name(), s.Type())
		}
	}
	r.services = append(r.services, s)
	return nil
}

// All returns every registered service.
func (r *Registry) All() []Service {
	return append([]Service(nil), r.services...)
}

// Find returns the service of type t called name.
func (r *Registry) Find(t Type, name string) (Service, error) {
	for _, s := range r.services {
		if s.Type() == t && s.Name() == name {
			return s, nil
		}
	}
	return nil, engine.NewUserError(fmt.Sprintf("no service of type '%s' named '%s'", t, name), nil).
		WithCode(engine.ErrCodeNotFound)
}

// FindLogicSimulator returns the logic simulator called name.
func (r *Registry) FindLogicSimulator(name string) (LogicSimulator, error) {
	s, err := r.Find(TypeLogicSimulation, name)
	if err != nil {
		return nil, err
	}
	sim, ok := s.(LogicSimulator)
	if !ok {
		return nil, fmt.Errorf("service %s is not a logic simulator", name)
	}
	return sim, nil
}
