package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/scheduler"
)

const fakeTool = `#!/bin/sh
echo "$(basename "$0") $*" >> '%CALLS%'
log=""
out=""
prev=""
for a in "$@"; do
  case "$prev" in
    -l) log="$a" ;;
    -o) out="$a" ;;
  esac
  prev="$a"
done
if [ -n "$log" ]; then
  echo "=W:[Demo] unused signal" >> "$log"
  if [ "$MIO_FAKE_FAIL" = "$(basename "$0")" ]; then
    echo "=E:[Demo] syntax error" >> "$log"
    exit 1
  fi
fi
if [ -n "$out" ]; then
  mkdir -p "$(dirname "$out")"
  echo "encrypted" > "$out"
fi
exit 0
`

// dsimFixture is a project with a testbench depending on a library and a
// fake DSim installation recording every invocation.
type dsimFixture struct {
	project string
	calls   string
	cfg     *config.Configuration
	db      *ip.Database
	dsim    *DSim
	sched   scheduler.Scheduler
	tb      *ip.IP
	lib     *ip.IP
}

func newDSimFixture(t *testing.T) *dsimFixture {
	t.Helper()
	root := t.TempDir()
	f := &dsimFixture{
		project: filepath.Join(root, "project"),
		calls:   filepath.Join(root, "calls.txt"),
	}

	install := filepath.Join(root, "dsim")
	bin := filepath.Join(install, "bin")
	if err := os.MkdirAll(bin, 0755); err != nil {
		t.Fatal(err)
	}
	script := strings.ReplaceAll(fakeTool, "%CALLS%", f.calls)
	for _, tool := range []string{"dsim", "dvlcom", "dvhcom", "dvlencrypt", "dvhencrypt"} {
		if err := os.WriteFile(filepath.Join(bin, tool), []byte(script), 0755); err != nil {
			t.Fatal(err)
		}
	}

	writeTestIP(t, f.project, "lib", "lib", "", "")
	writeTestIP(t, f.project, "tb", "dv_tb", "dependencies:\n  acme/lib: \"*\"\n",
		"  top: [\"tb_top\"]\n  tests_name_template: \"tb_{{ name }}_test\"\n")

	defaults, err := config.NewLoader(filepath.Join(root, "home")).LoadDefault()
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	f.cfg, err = config.Merge(defaults)
	if err != nil {
		t.Fatalf("failed to merge configuration: %v", err)
	}
	f.cfg.LogicSimulation.Simulators = map[string]config.SimulatorSettings{
		"dsim": {InstallationPath: install, LicensePath: filepath.Join(install, "dsim.lic")},
	}
	f.cfg.Encryption.KeyPaths = map[string]string{"dsim": filepath.Join(install, "key.txt")}

	mioDir := filepath.Join(f.project, ".mio")
	f.db = ip.NewDatabase(ip.Options{InstalledDir: filepath.Join(mioDir, "installed")})
	if _, err := f.db.Discover(f.project, ip.LocationLocal, true, true); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	if err := f.db.ResolveLocalDependencies(); err != nil {
		t.Fatalf("resolution failed: %v", err)
	}
	if f.tb, err = f.db.Find("tb", "acme", "*"); err != nil {
		t.Fatal(err)
	}
	if f.lib, err = f.db.Find("lib", "acme", "*"); err != nil {
		t.Fatal(err)
	}

	f.dsim = NewDSim(Paths{ProjectDir: f.project, MioDir: mioDir}, f.cfg, f.db, nil)
	if err := f.dsim.CreateDirectoryStructure(); err != nil {
		t.Fatalf("failed to create directories: %v", err)
	}
	f.sched = scheduler.NewLocal(scheduler.Options{})
	return f
}

// invocations returns one line per tool call.
func (f *dsimFixture) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.calls)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func writeTestIP(t *testing.T, dir, name, pkgType, deps, hdlExtra string) {
	t.Helper()
	root := filepath.Join(dir, name)
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, name+"_pkg.sv"), []byte("package "+name+"_pkg; endpackage\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "README.txt"), []byte(name+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	descriptor := "ip:\n  vendor: acme\n  name: " + name + "\n  full_name: " + name + " IP\n  version: 1.0.0\n  pkg_type: " + pkgType + "\n" +
		deps +
		"structure:\n  hdl_src_path: src\n" +
		"hdl_src:\n  directories: [\".\"]\n  top_sv_files: [\"" + name + "_pkg.sv\"]\n" + hdlExtra
	if err := os.WriteFile(filepath.Join(root, ip.DescriptorFileName), []byte(descriptor), 0644); err != nil {
		t.Fatal(err)
	}
}
