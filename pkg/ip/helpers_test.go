package ip

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeIP lays out a minimal IP under dir/<name> and returns its descriptor path.
func writeIP(t *testing.T, dir, vendor, name, version string, deps map[string]string) string {
	t.Helper()
	root := filepath.Join(dir, name)
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, name+"_pkg.sv"), []byte("package "+name+"_pkg; endpackage\n"), 0644))

	var b strings.Builder
	b.WriteString("ip:\n")
	if vendor != "" {
		fmt.Fprintf(&b, "  vendor: %s\n", vendor)
	}
	fmt.Fprintf(&b, "  name: %s\n  full_name: %s IP\n  version: %s\n  pkg_type: lib\n", name, name, version)
	if len(deps) > 0 {
		keys := make([]string, 0, len(deps))
		for k := range deps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("dependencies:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: \"%s\"\n", k, deps[k])
		}
	}
	b.WriteString("structure:\n  hdl_src_path: src\n")
	fmt.Fprintf(&b, "hdl_src:\n  directories: [\".\"]\n  top_sv_files: [\"%s_pkg.sv\"]\n", name)

	path := filepath.Join(root, DescriptorFileName)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	return NewDatabase(Options{
		InstalledDir: filepath.Join(dir, "installed"),
		TempDir:      filepath.Join(dir, "temp"),
	})
}

func names(ips []*IP) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.Name())
	}
	return out
}
