package commands

import (
	"context"
	"fmt"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
)

// PublishOptions are the flags of mio publish.
type PublishOptions struct {
	Username string
	Password string

	// Org is the customer a commercial IP is published for.
	Org string
}

// Publish uploads a new version of a local IP to the marketplace.
type Publish struct {
	engine.Base
	rt     *root.Runtime
	target string
	opts   PublishOptions

	ip *ip.IP
}

// NewPublish creates the publish command.
func NewPublish(rt *root.Runtime, target string, opts PublishOptions) *Publish {
	return &Publish{Base: engine.Base{CommandName: "publish"}, rt: rt, target: target, opts: opts}
}

// NeedsAuthentication implements engine.Command.
func (c *Publish) NeedsAuthentication() bool { return true }

// Hooks implements engine.Command.
func (c *Publish) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.GroupInit:                         c.init,
		engine.PostName(engine.GroupIPDiscovery): c.postIPDiscovery,
		engine.GroupMain:                         c.main,
	}
}

func (c *Publish) init(_ context.Context, p *engine.Phase) {
	if c.target == "" {
		fail(p, engine.NewUserError("no IP specified", nil).WithCode(engine.ErrCodeValidation))
		return
	}
	if err := useCredentials(c.rt, c.opts.Username, c.opts.Password); err != nil {
		fail(p, err)
	}
}

func (c *Publish) postIPDiscovery(_ context.Context, p *engine.Phase) {
	found, err := findIP(c.rt, c.target)
	if err != nil {
		fail(p, err)
		return
	}
	c.ip = found
}

func (c *Publish) main(ctx context.Context, p *engine.Phase) {
	cert, err := c.rt.IPs.PublishToServer(ctx, c.ip, c.opts.Org)
	if err != nil {
		fail(p, err)
		return
	}
	c.rt.Logger.WithIP(c.ip.QualifiedName()).
		WithField("version_id", cert.VersionID).
		WithField("license", cert.LicenseType).
		Debug("publishing certificate used")
	p.EndProcess(fmt.Sprintf("Published IP '%s' successfully.", c.ip))
}
