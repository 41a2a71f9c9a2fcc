package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
)

// Package writes the tarball of a local IP.
type Package struct {
	engine.Base
	rt     *root.Runtime
	target string
	dest   string

	ip *ip.IP
}

// NewPackage creates the package command. dest is a file path, or a
// directory receiving <archive name>.tgz; relative paths start at the
// working directory.
func NewPackage(rt *root.Runtime, target, dest string) *Package {
	return &Package{Base: engine.Base{CommandName: "package"}, rt: rt, target: target, dest: dest}
}

// Hooks implements engine.Command.
func (c *Package) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.GroupInit:                         c.init,
		engine.PostName(engine.GroupIPDiscovery): c.postIPDiscovery,
		engine.GroupMain:                         c.main,
	}
}

func (c *Package) init(_ context.Context, p *engine.Phase) {
	if c.target == "" || c.dest == "" {
		fail(p, engine.NewUserError("usage: mio package IP DEST", nil).WithCode(engine.ErrCodeValidation))
	}
}

func (c *Package) postIPDiscovery(_ context.Context, p *engine.Phase) {
	found, err := findIP(c.rt, c.target)
	if err != nil {
		fail(p, err)
		return
	}
	if found.Location() != ip.LocationLocal {
		fail(p, engine.NewUserError(fmt.Sprintf("only local IPs can be packaged: '%s' is %s", found, found.Location()), nil).
			WithIP(found.QualifiedName()))
		return
	}
	c.ip = found
}

func (c *Package) main(_ context.Context, p *engine.Phase) {
	dest := c.dest
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(c.rt.WorkingDir, dest)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, c.ip.ArchiveName()+".tgz")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		fail(p, engine.NewDomainError("failed to create destination directory", err).WithCode(engine.ErrCodeFilesystem))
		return
	}
	if err := ip.CreateArchive(c.ip, dest); err != nil {
		fail(p, engine.NewDomainError(fmt.Sprintf("failed to package IP '%s'", c.ip), err).
			WithIP(c.ip.QualifiedName()))
		return
	}
	c.rt.Logger.WithIP(c.ip.QualifiedName()).WithField("path", dest).Debug("packaged IP")
	p.EndProcess(fmt.Sprintf("Packaged IP '%s' successfully", c.ip))
}
