package commands

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
)

// fakeDSim writes tool scripts to the log passed with -l, and fails the tool
// named by MIO_FAKE_FAIL.
const fakeDSim = `#!/bin/sh
log=""
prev=""
for a in "$@"; do
  [ "$prev" = "-l" ] && log="$a"
  prev="$a"
done
if [ -n "$log" ]; then
  echo "=W:[Demo] unused signal" >> "$log"
  if [ "$MIO_FAKE_FAIL" = "$(basename "$0")" ]; then
    echo "=E:[Demo] syntax error" >> "$log"
    exit 1
  fi
fi
exit 0
`

// writeSimProject creates a project with a library and a testbench using it,
// simulated by a fake DSim installation.
func writeSimProject(t *testing.T) string {
	t.Helper()
	install := filepath.Join(t.TempDir(), "dsim")
	bin := filepath.Join(install, "bin")
	if err := os.MkdirAll(bin, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", bin, err)
	}
	for _, tool := range []string{"dsim", "dvlcom", "dvhcom"} {
		if err := os.WriteFile(filepath.Join(bin, tool), []byte(fakeDSim), 0755); err != nil {
			t.Fatalf("Failed to write %s: %v", tool, err)
		}
	}

	toml := demoProject + "[logic_simulation.simulators.dsim]\ninstallation_path = \"" + install + "\"\n"
	return writeProject(t, toml,
		testIP{vendor: "acme", name: "lib"},
		testIP{vendor: "acme", name: "tb", pkgType: "dv_tb",
			deps:  map[string]string{"acme/lib": "*"},
			extra: "  top: [\"tb_top\"]\n  tests_name_template: \"tb_{{ name }}_test\"\n"},
	)
}

func TestCheckStepSequence(t *testing.T) {
	tests := []struct {
		name  string
		steps []bool
		ok    bool
	}{
		{"everything", []bool{true, true, true, true}, true},
		{"compile only", []bool{false, true, false, false}, true},
		{"elaborate and simulate", []bool{false, false, true, true}, true},
		{"prepare only", []bool{true, false, false, false}, true},
		{"compile and simulate", []bool{false, true, false, true}, false},
		{"prepare and elaborate", []bool{true, false, true, false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStepSequence(tt.steps...)
			if tt.ok {
				if err != nil {
					t.Errorf("Expected %v to be accepted, got %v", tt.steps, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected %v to be rejected", tt.steps)
			}
			if !engine.IsUser(err) {
				t.Errorf("Expected a user error, got %v", err)
			}
		})
	}
}

func TestParseSimArgs(t *testing.T) {
	defines, plusArgs, err := parseSimArgs([]string{"+define+FAST", "+define+WIDTH=8", "+NPKTS=10", " +QUIET "})
	if err != nil {
		t.Fatalf("parseSimArgs failed: %v", err)
	}
	if want := map[string]string{"FAST": "", "WIDTH": "8"}; !maps.Equal(defines, want) {
		t.Errorf("Expected defines %v, got %v", want, defines)
	}
	if want := map[string]string{"NPKTS": "10", "QUIET": ""}; !maps.Equal(plusArgs, want) {
		t.Errorf("Expected plusargs %v, got %v", want, plusArgs)
	}

	for _, bad := range []string{"NPKTS=10", "+", "+define+=1"} {
		if _, _, err := parseSimArgs([]string{bad}); err == nil {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}

func TestSim(t *testing.T) {
	e := newEnv(t)
	t.Setenv("MIO_FAKE_FAIL", "")
	project := writeSimProject(t)

	res, out := e.run(project, func(rt *root.Runtime) engine.Command {
		return NewSim(rt, "acme/tb", SimOptions{Test: "smoke", Args: []string{"+NPKTS=4"}})
	})
	mustSucceed(t, res, out)
	expectContains(t, out, " SUCCESS ")
	expectContains(t, out, "Compilation+Elaboration results - 0E 1W: ")
	expectContains(t, out, "Simulation results - 0E 1W: ")
	expectContains(t, out, " Results: "+filepath.Join(project, "sim", "results"))
	expectNotContains(t, out, "Compilation results")
}

func TestSimFailure(t *testing.T) {
	e := newEnv(t)
	t.Setenv("MIO_FAKE_FAIL", "dsim")
	project := writeSimProject(t)

	res, out := e.run(project, func(rt *root.Runtime) engine.Command {
		return NewSim(rt, "tb", SimOptions{Test: "smoke"})
	})
	mustFail(t, res)
	expectContains(t, out, " FAILURE ")
	expectContains(t, out, "Compilation+Elaboration results - 1E 1W")
	expectContains(t, out, "=E:[Demo] syntax error")
	expectContains(t, out, "Simulation results - not run")
	expectContains(t, res.Err().Error(), "Logic Simulation failed.")
	if !slices.Contains(res.GroupsRun, engine.GroupReport) {
		t.Error("Expected a failed simulation to still report")
	}
}

func TestSimCompileOnly(t *testing.T) {
	e := newEnv(t)
	t.Setenv("MIO_FAKE_FAIL", "")
	project := writeSimProject(t)

	// a library can be compiled, it just cannot be simulated
	res, out := e.run(project, func(rt *root.Runtime) engine.Command {
		return NewSim(rt, "acme/lib", SimOptions{Compile: true})
	})
	mustSucceed(t, res, out)
	expectContains(t, out, "Compilation results - 0E 1W: ")
	expectNotContains(t, out, "Simulation results")
}

func TestSimRejections(t *testing.T) {
	e := newEnv(t)
	project := writeSimProject(t)

	tests := []struct {
		name   string
		target string
		opts   SimOptions
		want   string
	}{
		{"no test", "acme/tb", SimOptions{}, "no test specified"},
		{"not a testbench", "acme/lib", SimOptions{Test: "smoke"}, "is not a Test Bench"},
		{"step gap", "acme/tb", SimOptions{Compile: true, Simulate: true, Test: "smoke"}, "illegal combination"},
		{"bad verbosity", "acme/tb", SimOptions{Test: "smoke", Verbosity: "loud"}, ""},
		{"unknown ip", "acme/ghost", SimOptions{Test: "smoke"}, "cannot find IP 'acme/ghost'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, out := e.run(project, func(rt *root.Runtime) engine.Command {
				return NewSim(rt, tt.target, tt.opts)
			})
			mustFail(t, res)
			if !engine.IsUser(res.Err()) {
				t.Errorf("Expected a user error, got %v", res.Err())
			}
			expectContains(t, res.Err().Error(), tt.want)
			if slices.Contains(res.GroupsRun, engine.GroupMain) {
				t.Error("Expected the run to stop before the main group")
			}
			if strings.Contains(out, "SUCCESS") || strings.Contains(out, "FAILURE") {
				t.Errorf("Expected no simulation report, got:\n%s", out)
			}
		})
	}
}
