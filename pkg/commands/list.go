package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
)

// ListOptions are the flags of mio list.
type ListOptions struct {
	// Watch keeps the command running, printing the list again whenever a
	// descriptor under a local or global path changes. It stops when the
	// run's context is canceled.
	Watch bool
}

// List prints the IPs known to the project.
type List struct {
	engine.Base
	rt   *root.Runtime
	opts ListOptions
}

// NewList creates the list command.
func NewList(rt *root.Runtime, opts ListOptions) *List {
	return &List{Base: engine.Base{CommandName: "list"}, rt: rt, opts: opts}
}

// Hooks implements engine.Command.
func (c *List) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.PostName(engine.GroupIPDiscovery): c.postIPDiscovery,
		engine.GroupMain:                         c.main,
	}
}

func (c *List) postIPDiscovery(_ context.Context, p *engine.Phase) {
	PrintIPs(c.rt.Out, c.rt.IPs.All())
	if !c.opts.Watch {
		p.EndProcess("")
	}
}

func (c *List) main(ctx context.Context, p *engine.Phase) {
	if !c.opts.Watch {
		return
	}

	var roots []string
	for _, path := range append(append([]string{}, c.rt.Config.IP.LocalPaths...), c.rt.Config.IP.GlobalPaths...) {
		if path == "" {
			continue
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.rt.ProjectDir, path)
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			roots = append(roots, path)
		}
	}

	w, err := ip.NewWatcher(roots...)
	if err != nil {
		p.SetError(fmt.Errorf("failed to watch IP paths: %w", err))
		return
	}
	if err := w.Start(); err != nil {
		w.Stop()
		p.SetError(fmt.Errorf("failed to watch IP paths: %w", err))
		return
	}
	defer w.Stop()

	log := c.rt.Logger.WithField("roots", len(roots))
	log.Debug("watching IP descriptors")
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-w.Changes:
			if !ok {
				return
			}
			log.WithField("file", change.File).WithField("change", change.Kind.String()).Debug("descriptor changed")
			if err := c.rt.RefreshIPs(); err != nil {
				fmt.Fprintf(c.rt.Out, "Failed to list IPs: %v\n", err)
				continue
			}
			fmt.Fprintln(c.rt.Out)
			PrintIPs(c.rt.Out, c.rt.IPs.All())
		}
	}
}

// PrintIPs writes the listing of ips, vendorless IPs first, then by vendor
// and name.
func PrintIPs(w io.Writer, ips []*ip.IP) {
	sorted := append([]*ip.IP(nil), ips...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.HasVendor() != b.HasVendor() {
			return !a.HasVendor()
		}
		if a.Vendor() != b.Vendor() {
			return a.Vendor() < b.Vendor()
		}
		return a.Name() < b.Name()
	})

	fmt.Fprintf(w, "Found %d IP(s):\n", len(sorted))
	for _, i := range sorted {
		fmt.Fprintf(w, "  %s v%s - %s: %s\n", i.QualifiedName(), i.Version(), i.PkgType(), i.Descriptor.IP.FullName)
	}
}
