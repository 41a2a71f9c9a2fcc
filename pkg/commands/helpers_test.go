package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/root"
)

// testIP describes an IP laid out by writeIP.
type testIP struct {
	vendor  string
	name    string
	version string
	pkgType string
	deps    map[string]string
	extra   string
}

// writeIP lays out ip under dir/<name>.
func writeIP(t *testing.T, dir string, i testIP) {
	t.Helper()
	if i.version == "" {
		i.version = "1.0.0"
	}
	if i.pkgType == "" {
		i.pkgType = "lib"
	}
	rootDir := filepath.Join(dir, i.name)
	src := filepath.Join(rootDir, "src")
	mustWrite(t, filepath.Join(src, i.name+"_pkg.sv"), "package "+i.name+"_pkg; endpackage\n")

	var b strings.Builder
	b.WriteString("ip:\n")
	if i.vendor != "" {
		fmt.Fprintf(&b, "  vendor: %s\n", i.vendor)
	}
	fmt.Fprintf(&b, "  name: %s\n  full_name: %s IP\n  version: %s\n  pkg_type: %s\n", i.name, i.name, i.version, i.pkgType)
	if len(i.deps) > 0 {
		keys := make([]string, 0, len(i.deps))
		for k := range i.deps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("dependencies:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: \"%s\"\n", k, i.deps[k])
		}
	}
	b.WriteString("structure:\n  hdl_src_path: src\n")
	fmt.Fprintf(&b, "hdl_src:\n  directories: [\".\"]\n  top_sv_files: [\"%s_pkg.sv\"]\n", i.name)
	b.WriteString(i.extra)

	mustWrite(t, filepath.Join(rootDir, ip.DescriptorFileName), b.String())
}

// mustWrite writes content to path, creating its parent directories.
func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// writeProject creates a project directory holding mio.toml and ips.
func writeProject(t *testing.T, toml string, ips ...testIP) string {
	t.Helper()
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, config.ProjectFileName), toml)
	for _, i := range ips {
		writeIP(t, filepath.Join(dir, "ips"), i)
	}
	return dir
}

// syncBuffer is a bytes.Buffer safe for a writer and a reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// env holds what survives between the runs of one test: the mio home and
// the marketplace location.
type env struct {
	t              *testing.T
	home           string
	marketplaceURL string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv(root.PasswordEnv, "")
	t.Setenv(root.MarketplaceURLEnv, "")
	return &env{t: t, home: t.TempDir()}
}

// run executes the command built by newCmd in a fresh runtime started in wd.
func (e *env) run(wd string, newCmd func(rt *root.Runtime) engine.Command) (*engine.Result, string) {
	return e.runContext(context.Background(), wd, &syncBuffer{}, newCmd)
}

func (e *env) runContext(ctx context.Context, wd string, out *syncBuffer, newCmd func(rt *root.Runtime) engine.Command) (*engine.Result, string) {
	e.t.Helper()
	rt := root.New(root.Options{
		WorkingDir:     wd,
		HomeDir:        e.home,
		Output:         out,
		MarketplaceURL: e.marketplaceURL,
	})
	defer rt.Close()

	res, err := rt.Run(ctx, newCmd(rt))
	if err != nil {
		e.t.Fatalf("Run failed: %v", err)
	}
	if res == nil {
		e.t.Fatal("Expected a run result")
	}
	return res, out.String()
}

// installedDirs lists the IP directories installed in a project.
func installedDirs(t *testing.T, project string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(project, root.MioDirName, "installed"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("Failed to read installed IPs: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// mustSucceed stops the test when res failed.
func mustSucceed(t *testing.T, res *engine.Result, out string) {
	t.Helper()
	if !res.Success() {
		t.Fatalf("Expected success, got %v\n%s", res.Err(), out)
	}
}

// mustFail stops the test when res succeeded.
func mustFail(t *testing.T, res *engine.Result) {
	t.Helper()
	if res.Success() {
		t.Fatal("Expected the command to fail")
	}
}

func expectContains(t *testing.T, s, want string) {
	t.Helper()
	if !strings.Contains(s, want) {
		t.Errorf("Expected %q in:\n%s", want, s)
	}
}

func expectNotContains(t *testing.T, s, unwanted string) {
	t.Helper()
	if strings.Contains(s, unwanted) {
		t.Errorf("Expected no %q in:\n%s", unwanted, s)
	}
}
