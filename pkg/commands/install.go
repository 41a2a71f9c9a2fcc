package commands

import (
	"context"
	"fmt"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
)

// Install fetches missing dependencies from the marketplace, for one IP or for
// the whole project.
type Install struct {
	engine.Base
	rt     *root.Runtime
	target string

	def *ip.Definition
}

// NewInstall creates the install command. An empty target installs the
// dependencies of every IP.
func NewInstall(rt *root.Runtime, target string) *Install {
	return &Install{Base: engine.Base{CommandName: "install"}, rt: rt, target: target}
}

// NeedsAuthentication implements engine.Command.
func (c *Install) NeedsAuthentication() bool { return true }

// Hooks implements engine.Command.
func (c *Install) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.GroupInit: c.init,
		engine.GroupMain: c.main,
	}
}

func (c *Install) init(_ context.Context, p *engine.Phase) {
	if c.target == "" {
		return
	}
	def, err := ip.ParseDefinition(c.target)
	if err != nil {
		fail(p, err)
		return
	}
	c.def = def
}

func (c *Install) main(ctx context.Context, p *engine.Phase) {
	var targets []*ip.Definition
	if c.def != nil {
		targets = []*ip.Definition{c.def}
	}

	before := c.rt.IPs.Len()
	rounds, err := c.rt.IPs.InstallMissing(ctx, targets)
	if err != nil {
		fail(p, err)
		return
	}
	c.rt.Logger.WithField("rounds", rounds).WithField("installed", c.rt.IPs.Len()-before).Debug("installation complete")

	if c.def != nil {
		p.EndProcess(fmt.Sprintf("Installed IP '%s' successfully", c.target))
		return
	}
	p.EndProcess("Installed all IPs successfully")
}
