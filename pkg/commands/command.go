package commands

import (
	"fmt"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
)

// fail attaches err to p and ends the run after the current group.
func fail(p *engine.Phase, err error) {
	p.SetError(err)
	p.EndProcess("")
}

// findIP looks up a "vendor/name" or "name" argument in the run's database.
func findIP(rt *root.Runtime, text string) (*ip.IP, error) {
	def, err := ip.ParseDefinition(text)
	if err != nil {
		return nil, err
	}
	found, err := rt.IPs.FindDefinition(def)
	if err != nil {
		return nil, engine.NewUserError(fmt.Sprintf("cannot find IP '%s'", text), err).
			WithCode(engine.ErrCodeNotFound).
			WithIP(def.String())
	}
	return found, nil
}

// useCredentials hands -u/-p to the runtime before user data is loaded. A
// password alone is rejected; a username alone relies on the environment
// for the password.
func useCredentials(rt *root.Runtime, username, password string) error {
	if password != "" && username == "" {
		return engine.NewUserError("a password was given without a username: use -u with -p", nil).
			WithCode(engine.ErrCodeAuthentication)
	}
	if username != "" {
		rt.SetCredentials(username, password)
	}
	return nil
}
