package commands

import (
	"context"
	"fmt"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
)

// Uninstall removes installed IPs from the project.
type Uninstall struct {
	engine.Base
	rt     *root.Runtime
	target string

	ip *ip.IP
}

// NewUninstall creates the uninstall command. An empty target removes every
// installed IP.
func NewUninstall(rt *root.Runtime, target string) *Uninstall {
	return &Uninstall{Base: engine.Base{CommandName: "uninstall"}, rt: rt, target: target}
}

// Hooks implements engine.Command.
func (c *Uninstall) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.PostName(engine.GroupIPDiscovery): c.postIPDiscovery,
		engine.GroupMain:                         c.main,
	}
}

func (c *Uninstall) postIPDiscovery(_ context.Context, p *engine.Phase) {
	if c.target == "" {
		return
	}
	found, err := findIP(c.rt, c.target)
	if err != nil {
		fail(p, err)
		return
	}
	if found.Location() != ip.LocationInstalled {
		fail(p, engine.NewUserError(fmt.Sprintf("IP '%s' is %s: only installed IPs can be uninstalled", found, found.Location()), nil).
			WithIP(found.QualifiedName()))
		return
	}
	c.ip = found
}

func (c *Uninstall) main(_ context.Context, p *engine.Phase) {
	if c.ip == nil {
		if err := c.rt.IPs.UninstallAll(); err != nil {
			fail(p, engine.NewDomainError("failed to uninstall IPs", err).WithCode(engine.ErrCodeFilesystem))
			return
		}
		p.EndProcess("Uninstalled all IPs successfully")
		return
	}

	if err := c.rt.IPs.Uninstall(c.ip, true); err != nil {
		fail(p, engine.NewDomainError(fmt.Sprintf("failed to uninstall IP '%s'", c.ip), err).
			WithCode(engine.ErrCodeFilesystem).
			WithIP(c.ip.QualifiedName()))
		return
	}
	p.EndProcess(fmt.Sprintf("Uninstalled IP '%s' successfully", c.target))
}
