package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/scheduler"
)

// IPEncryptor encrypts IPs for publishing with the logic simulators of a
// registry.
type IPEncryptor struct {
	services  *Registry
	scheduler scheduler.Scheduler
}

var _ ip.Encryptor = (*IPEncryptor)(nil)

// NewIPEncryptor returns an ip.Encryptor dispatching through sched.
func NewIPEncryptor(services *Registry, sched scheduler.Scheduler) *IPEncryptor {
	return &IPEncryptor{services: services, scheduler: sched}
}

// Encrypt runs the named simulator's encryption and returns the encrypted tree.
func (e *IPEncryptor) Encrypt(ctx context.Context, target *ip.IP, simulator string, license ip.EncryptionLicense) (string, error) {
	sim, err := e.services.FindLogicSimulator(simulator)
	if err != nil {
		return "", err
	}
	rep, err := sim.Encrypt(ctx, target, EncryptionConfig{LicenseID: license.ID, LicenseKey: license.Key}, e.scheduler)
	if err != nil {
		return "", err
	}
	if !rep.Success {
		return "", fmt.Errorf("%s encryption failed: %s", sim.FullName(), strings.Join(rep.Errors, "; "))
	}
	return rep.OutputPath, nil
}
