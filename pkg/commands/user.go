package commands

import (
	"context"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
)

// LoginOptions are the flags of mio login.
type LoginOptions struct {
	Username string
	Password string
}

// Login authenticates with the marketplace even when a token is already held.
type Login struct {
	engine.Base
	rt   *root.Runtime
	opts LoginOptions
}

// NewLogin creates the login command.
func NewLogin(rt *root.Runtime, opts LoginOptions) *Login {
	return &Login{Base: engine.Base{CommandName: "login"}, rt: rt, opts: opts}
}

// NeedsAuthentication implements engine.Command.
func (c *Login) NeedsAuthentication() bool { return true }

// Hooks implements engine.Command.
func (c *Login) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.GroupInit:                          c.init,
		engine.PostName(engine.GroupLoadUserData): c.postLoadUserData,
		engine.PostName(engine.GroupSaveUserData): c.postSaveUserData,
	}
}

func (c *Login) init(_ context.Context, p *engine.Phase) {
	if err := useCredentials(c.rt, c.opts.Username, c.opts.Password); err != nil {
		fail(p, err)
	}
}

func (c *Login) postLoadUserData(_ context.Context, _ *engine.Phase) {
	c.rt.User.Logout()
}

func (c *Login) postSaveUserData(_ context.Context, p *engine.Phase) {
	p.EndProcess("Logged in successfully")
}

// Logout forgets the marketplace token.
type Logout struct {
	engine.Base
	rt *root.Runtime
}

// NewLogout creates the logout command.
func NewLogout(rt *root.Runtime) *Logout {
	return &Logout{Base: engine.Base{CommandName: "logout"}, rt: rt}
}

// Hooks implements engine.Command.
func (c *Logout) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.PostName(engine.GroupLoadUserData): func(_ context.Context, _ *engine.Phase) {
			c.rt.User.Logout()
		},
		engine.PostName(engine.GroupSaveUserData): func(_ context.Context, p *engine.Phase) {
			p.EndProcess("Logged out successfully")
		},
	}
}
