package root

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/marketplace/marketplacetest"
	"github.com/mooreio/mio/pkg/stores"
	"github.com/mooreio/mio/pkg/telemetry"
)

type stubCommand struct {
	engine.Base
	auth  bool
	hooks engine.Hooks
}

func (c *stubCommand) NeedsAuthentication() bool { return c.auth }
func (c *stubCommand) Hooks() engine.Hooks       { return c.hooks }

func newStubCommand(hooks engine.Hooks) *stubCommand {
	if hooks == nil {
		hooks = engine.Hooks{}
	}
	return &stubCommand{Base: engine.Base{CommandName: "stub"}, hooks: hooks}
}

// writeProject creates a project with one IP under ips/ and returns its directory.
func writeProject(t *testing.T, toml string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.ProjectFileName), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(dir, "ips", "uart", "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "uart_pkg.sv"), []byte("package uart_pkg; endpackage\n"), 0644); err != nil {
		t.Fatal(err)
	}
	descriptor := `ip:
  vendor: acme
  name: uart
  full_name: UART
  version: 1.0.0
  pkg_type: block
structure:
  hdl_src_path: src
hdl_src:
  directories: ["."]
  top_sv_files: ["uart_pkg.sv"]
`
	if err := os.WriteFile(filepath.Join(dir, "ips", "uart", "ip.yml"), []byte(descriptor), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newRuntime(t *testing.T, opts Options) (*Runtime, *bytes.Buffer) {
	t.Helper()
	t.Setenv(PasswordEnv, "")
	t.Setenv(MarketplaceURLEnv, "")
	out := &bytes.Buffer{}
	opts.Output = out
	if opts.HomeDir == "" {
		opts.HomeDir = t.TempDir()
	}
	rt := New(opts)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, out
}

func TestRunDiscoversProject(t *testing.T) {
	project := writeProject(t, "[project]\nname = \"demo\"\n")
	rt, _ := newRuntime(t, Options{WorkingDir: filepath.Join(project, "ips"), Args: []string{"stub"}})

	var seen int
	cmd := newStubCommand(engine.Hooks{
		engine.GroupMain: func(_ context.Context, _ *engine.Phase) {
			seen = rt.IPs.Len()
		},
	})

	res, err := rt.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("Expected success, got %v", res.Err())
	}
	if rt.ProjectDir != project {
		t.Errorf("Expected project dir %s, got %s", project, rt.ProjectDir)
	}
	if seen != 1 {
		t.Errorf("Expected 1 IP during main, got %d", seen)
	}
	if rt.Config.Project.Name != "demo" {
		t.Errorf("Expected project name 'demo', got '%s'", rt.Config.Project.Name)
	}
	for _, dir := range []string{rt.MioDir, rt.TempDir(), rt.InstalledDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s to exist", dir)
		}
	}
	if len(res.GroupsRun) != len(engine.GroupNames()) {
		t.Errorf("Expected every group to run, got %v", res.GroupsRun)
	}

	store, err := rt.History(context.Background())
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	runs, err := store.ListRuns(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 recorded run, got %d", len(runs))
	}
	if runs[0].Command != "stub" || runs[0].Status != stores.RunStatusSucceeded {
		t.Errorf("Expected a succeeded stub run, got %s %s", runs[0].Command, runs[0].Status)
	}
	if runs[0].ID != res.RunID {
		t.Errorf("Expected run ID %s, got %s", res.RunID, runs[0].ID)
	}
}

func TestSchedulersAndServicesRegistered(t *testing.T) {
	project := writeProject(t, "[project]\nname = \"demo\"\n")
	rt, _ := newRuntime(t, Options{WorkingDir: project, DisableHistory: true})

	if _, err := rt.Run(context.Background(), newStubCommand(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := rt.Schedulers.Names()
	if !slices.Equal(names, []string{"local", "lsf", "grid_engine"}) {
		t.Errorf("Expected local, lsf and grid_engine, got %v", names)
	}
	sched, err := rt.DefaultScheduler()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sched.Name() != "local" {
		t.Errorf("Expected the local scheduler by default, got %s", sched.Name())
	}
	if _, err := rt.Services.FindLogicSimulator("dsim"); err != nil {
		t.Errorf("Expected dsim to be registered: %v", err)
	}
	if info, err := os.Stat(filepath.Join(rt.MioDir, "logic_simulation", "dsim")); err != nil || !info.IsDir() {
		t.Error("Expected the dsim work directory to be created")
	}
}

func TestRunWithoutProjectFile(t *testing.T) {
	rt, _ := newRuntime(t, Options{WorkingDir: t.TempDir()})

	mainRan := false
	cmd := newStubCommand(engine.Hooks{
		engine.GroupMain: func(_ context.Context, _ *engine.Phase) { mainRan = true },
	})

	res, err := rt.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success() {
		t.Fatal("Expected the run to fail")
	}
	if !engine.HasCode(res.Err(), engine.ErrCodeNotFound) {
		t.Errorf("Expected a not found error, got %v", res.Err())
	}
	if !res.EndedEarly {
		t.Error("Expected the run to end early")
	}
	if mainRan {
		t.Error("Expected main to be skipped")
	}
	if !slices.Contains(res.GroupsRun, engine.GroupFinal) {
		t.Errorf("Expected final to run, got %v", res.GroupsRun)
	}
	if res.ExitCode() != 1 {
		t.Errorf("Expected exit code 1, got %d", res.ExitCode())
	}
}

func TestRunMissingWorkingDirectory(t *testing.T) {
	rt, _ := newRuntime(t, Options{WorkingDir: filepath.Join(t.TempDir(), "nope")})

	res, err := rt.Run(context.Background(), newStubCommand(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !engine.IsUser(res.Err()) {
		t.Errorf("Expected a user error, got %v", res.Err())
	}
}

func TestRunInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{name: "syntax", toml: "[project\n"},
		{name: "schema", toml: "[logic_simulation]\nuvm_version = \"0.9\"\n"},
		{name: "scheduler", toml: "[scheduler]\ndefault = \"pbs\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := writeProject(t, tt.toml)
			rt, _ := newRuntime(t, Options{WorkingDir: project, DisableHistory: true})

			res, err := rt.Run(context.Background(), newStubCommand(nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !engine.HasCode(res.Err(), engine.ErrCodeValidation) {
				t.Errorf("Expected a validation error, got %v", res.Err())
			}
			if slices.Contains(res.GroupsRun, engine.GroupMain) {
				t.Error("Expected main to be skipped")
			}
		})
	}
}

func TestEndProcessMessage(t *testing.T) {
	project := writeProject(t, "")
	rt, out := newRuntime(t, Options{WorkingDir: project})

	cmd := newStubCommand(engine.Hooks{
		engine.PostName(engine.GroupIPDiscovery): func(_ context.Context, p *engine.Phase) {
			p.EndProcess(fmt.Sprintf("found %d", rt.IPs.Len()))
		},
	})

	res, err := rt.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() || !res.EndedEarly {
		t.Fatalf("Expected a successful early end, got success=%v ended=%v", res.Success(), res.EndedEarly)
	}
	if out.String() != "found 1\n" {
		t.Errorf("Expected 'found 1', got %q", out.String())
	}

	store, err := rt.History(context.Background())
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != stores.RunStatusEnded {
		t.Errorf("Expected status ended, got %s", run.Status)
	}
	if run.EndMessage == nil || *run.EndMessage != "found 1" {
		t.Errorf("Expected end message 'found 1', got %v", run.EndMessage)
	}
}

func TestAuthenticate(t *testing.T) {
	srv := marketplacetest.NewServer()
	defer srv.Close()
	srv.AddUser("jdoe", "secret")

	project := writeProject(t, "")
	home := t.TempDir()
	rt, _ := newRuntime(t, Options{
		WorkingDir:     project,
		HomeDir:        home,
		Username:       "jdoe",
		Password:       "secret",
		MarketplaceURL: srv.URL,
	})

	cmd := newStubCommand(nil)
	cmd.auth = true
	res, err := rt.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("Expected success, got %v", res.Err())
	}

	user, err := config.LoadUser(config.UserFilePath(home))
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if !user.Authenticated || user.Token == "" {
		t.Errorf("Expected a saved token, got %+v", user)
	}
	if user.Username != "jdoe" {
		t.Errorf("Expected username 'jdoe', got '%s'", user.Username)
	}

	// a second run reuses the stored token
	rt2, _ := newRuntime(t, Options{WorkingDir: project, HomeDir: home, MarketplaceURL: srv.URL})
	cmd2 := newStubCommand(nil)
	cmd2.auth = true
	res, err = rt2.Run(context.Background(), cmd2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("Expected success, got %v", res.Err())
	}
	if calls := srv.Calls("auth/token"); calls != 1 {
		t.Errorf("Expected 1 token request, got %d", calls)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	srv := marketplacetest.NewServer()
	defer srv.Close()
	srv.AddUser("jdoe", "secret")

	tests := []struct {
		name     string
		username string
		password string
		userErr  bool
	}{
		{name: "no username", userErr: true},
		{name: "no password", username: "jdoe", userErr: true},
		{name: "wrong password", username: "jdoe", password: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := newRuntime(t, Options{
				WorkingDir:     writeProject(t, ""),
				Username:       tt.username,
				Password:       tt.password,
				MarketplaceURL: srv.URL,
			})
			cmd := newStubCommand(nil)
			cmd.auth = true

			res, err := rt.Run(context.Background(), cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !engine.HasCode(res.Err(), engine.ErrCodeAuthentication) {
				t.Errorf("Expected an authentication error, got %v", res.Err())
			}
			if engine.IsUser(res.Err()) != tt.userErr {
				t.Errorf("Expected user error %v, got %v", tt.userErr, res.Err())
			}
			if !res.EndedEarly {
				t.Error("Expected the run to end early")
			}
		})
	}
}

func TestPasswordFromEnvironment(t *testing.T) {
	srv := marketplacetest.NewServer()
	defer srv.Close()
	srv.AddUser("jdoe", "secret")

	rt, _ := newRuntime(t, Options{
		WorkingDir:     writeProject(t, ""),
		Username:       "jdoe",
		MarketplaceURL: srv.URL,
	})
	t.Setenv(PasswordEnv, "secret")

	cmd := newStubCommand(nil)
	cmd.auth = true
	res, err := rt.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success() {
		t.Errorf("Expected success, got %v", res.Err())
	}
}

func TestMetricsTextfile(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "mio"})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	tel := telemetry.NewNopTelemetry()
	tel.Metrics = metrics

	project := writeProject(t, "[telemetry]\nmetrics_textfile = true\n")
	rt, _ := newRuntime(t, Options{WorkingDir: project, Telemetry: tel, DisableHistory: true})

	if _, err := rt.Run(context.Background(), newStubCommand(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(project, MioDirName, "metrics.prom"))
	if err != nil {
		t.Fatalf("Expected a metrics textfile: %v", err)
	}
	if !bytes.Contains(data, []byte("mio_ips_discovered_total")) {
		t.Errorf("Expected discovered IPs in the textfile, got:\n%s", data)
	}
}

func TestMetricsTextfileAfterEarlyEnd(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "mio"})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	tel := telemetry.NewNopTelemetry()
	tel.Metrics = metrics

	project := writeProject(t, "[telemetry]\nmetrics_textfile = true\n")
	rt, _ := newRuntime(t, Options{WorkingDir: project, Telemetry: tel, DisableHistory: true})

	cmd := newStubCommand(engine.Hooks{
		engine.GroupMain: func(_ context.Context, p *engine.Phase) { p.EndProcess("done") },
	})
	res, err := rt.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.EndedEarly {
		t.Fatal("Expected the run to end early")
	}
	if slices.Contains(res.GroupsRun, engine.GroupCheck) || slices.Contains(res.GroupsRun, engine.GroupReport) {
		t.Errorf("Expected check and report to be skipped, got %v", res.GroupsRun)
	}
	if !slices.Contains(res.GroupsRun, engine.GroupCleanup) {
		t.Errorf("Expected cleanup to run, got %v", res.GroupsRun)
	}
	if _, err := os.Stat(filepath.Join(project, MioDirName, "metrics.prom")); err != nil {
		t.Errorf("Expected a metrics textfile: %v", err)
	}
}
