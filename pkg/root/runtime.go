// Package root owns the per-run state of mio. A Runtime is created for each
// command invocation; it supplies the engine with the bodies of every phase
// group (configuration layering, authentication, discovery, bookkeeping) and
// hands the resulting state to the command hooks.
package root

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/marketplace"
	"github.com/mooreio/mio/pkg/scheduler"
	"github.com/mooreio/mio/pkg/service"
	"github.com/mooreio/mio/pkg/stores"
	"github.com/mooreio/mio/pkg/telemetry"
)

const (
	// MioDirName is the per-project state directory.
	MioDirName = ".mio"

	// PasswordEnv supplies the marketplace password when none is given on the command line.
	PasswordEnv = config.EnvPrefix + "_AUTHENTICATION_PASSWORD"

	// MarketplaceURLEnv overrides the marketplace location.
	MarketplaceURLEnv = config.EnvPrefix + "_MARKETPLACE_URL"

	historyFileName = "history.db"
	metricsFileName = "metrics.prom"
	historyKeep     = 1000
)

// Options configures a Runtime.
type Options struct {
	// WorkingDir is where the project file search starts. Defaults to the process directory.
	WorkingDir string

	// HomeDir replaces ~/.mio. Defaults to config.HomeDir().
	HomeDir string

	// Output receives user-facing text. Defaults to os.Stdout.
	Output io.Writer

	// Args are the command-line arguments, kept in the history.
	Args []string

	// Username and Password are credentials given on the command line.
	Username string
	Password string

	// MarketplaceURL takes precedence over configuration and MIO_MARKETPLACE_URL.
	MarketplaceURL string

	// DisableHistory turns off recording of the run.
	DisableHistory bool

	Telemetry *telemetry.Telemetry
}

// Runtime is the state shared by the engine bodies and the command hooks of one run.
type Runtime struct {
	RunID string

	WorkingDir  string
	HomeDir     string
	ProjectFile string
	ProjectDir  string
	MioDir      string

	Loader       *config.Loader
	DefaultLayer map[string]any
	UserLayer    map[string]any
	ProjectLayer map[string]any
	Config       *config.Configuration
	User         *config.User

	IPs         *ip.Database
	Schedulers  *scheduler.Registry
	Services    *service.Registry
	Marketplace *marketplace.Client
	JobConfig   scheduler.Configuration

	Out     io.Writer
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	opts       Options
	history    *stores.SQLiteStore
	sshSched   *scheduler.SSH
	encryptor  ip.Encryptor
	defaultErr error
}

// New creates a runtime. Nothing is read from disk until Run.
func New(opts Options) *Runtime {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}
	if opts.Telemetry.Logger == nil {
		opts.Telemetry.Logger = telemetry.NewNopLogger()
	}
	return &Runtime{
		Out:        opts.Output,
		Logger:     opts.Telemetry.Logger.NewComponentLogger("root"),
		Metrics:    opts.Telemetry.Metrics,
		Tracer:     opts.Telemetry.Tracer,
		Schedulers: scheduler.NewRegistry(),
		Services:   service.NewRegistry(),
		opts:       opts,
	}
}

// Run executes cmd through every phase group, prints the end message and
// records the run in the project history.
func (rt *Runtime) Run(ctx context.Context, cmd engine.Command) (*engine.Result, error) {
	eng := engine.New(engine.Options{
		Bodies:  rt.Bodies(),
		Logger:  rt.opts.Telemetry.Logger,
		Metrics: rt.Metrics,
		Tracer:  rt.Tracer,
	})
	rt.RunID = eng.RunID()
	rt.Logger = rt.Logger.WithRunID(rt.RunID)

	if err := eng.Bind(cmd); err != nil {
		return nil, err
	}
	res, err := eng.Execute(ctx)
	if res == nil {
		return nil, err
	}

	if res.EndMessage != "" {
		fmt.Fprintln(rt.Out, res.EndMessage)
	}
	if !rt.opts.DisableHistory {
		if herr := rt.recordHistory(ctx, res); herr != nil {
			rt.Logger.WithError(herr).Warn("failed to record command history")
		}
	}
	return res, err
}

// SetCredentials replaces the credentials given in Options. It has no effect
// once user data is loaded.
func (rt *Runtime) SetCredentials(username, password string) {
	rt.opts.Username = username
	rt.opts.Password = password
}

// Close releases the resources held by the runtime.
func (rt *Runtime) Close() error {
	var errs []string
	if rt.sshSched != nil {
		if err := rt.sshSched.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		rt.sshSched = nil
	}
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		rt.history = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close runtime: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DefaultScheduler returns the configured job scheduler, or the first available one.
func (rt *Runtime) DefaultScheduler() (scheduler.Scheduler, error) {
	if rt.defaultErr != nil {
		return nil, rt.defaultErr
	}
	preferred := ""
	if rt.Config != nil {
		preferred = rt.Config.Scheduler.Default
	}
	return rt.Schedulers.Default(preferred)
}

// TempDir is where intermediate files of the run are written.
func (rt *Runtime) TempDir() string {
	return filepath.Join(rt.MioDir, "temp")
}

// InstalledDir is where IPs fetched from the marketplace live.
func (rt *Runtime) InstalledDir() string {
	return filepath.Join(rt.MioDir, "installed")
}

// UserFile is the path of the user data file.
func (rt *Runtime) UserFile() string {
	return config.UserFilePath(rt.HomeDir)
}

// History opens the project history store. It fails outside a project.
func (rt *Runtime) History(ctx context.Context) (*stores.SQLiteStore, error) {
	if rt.history != nil {
		return rt.history, nil
	}
	if rt.MioDir == "" {
		return nil, engine.NewUserError("command history is only kept inside a project", nil).
			WithCode(engine.ErrCodeNotFound)
	}
	if err := os.MkdirAll(rt.MioDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", rt.MioDir, err)
	}
	store, err := stores.Open(ctx, filepath.Join(rt.MioDir, historyFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open command history: %w", err)
	}
	rt.history = store
	return store, nil
}

func (rt *Runtime) recordHistory(ctx context.Context, res *engine.Result) error {
	if rt.MioDir == "" {
		return nil
	}
	store, err := rt.History(ctx)
	if err != nil {
		return err
	}

	run := &stores.Run{
		ID:         res.RunID,
		Command:    res.Command,
		Args:       rt.opts.Args,
		WorkingDir: rt.WorkingDir,
		Status:     stores.RunStatusSucceeded,
		ExitCode:   res.ExitCode(),
		Phases:     res.GroupsRun,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if res.EndedEarly {
		run.Status = stores.RunStatusEnded
	}
	if res.EndMessage != "" {
		msg := res.EndMessage
		run.EndMessage = &msg
	}
	if err := res.Err(); err != nil {
		run.Status = stores.RunStatusFailed
		msg := err.Error()
		run.Error = &msg
	}

	if err := store.RecordRun(ctx, run); err != nil {
		return err
	}
	_, err = store.PruneRuns(ctx, historyKeep)
	return err
}

// ensureMarketplace points the marketplace client at url, keeping the user token.
func (rt *Runtime) ensureMarketplace(url string, timeout time.Duration) {
	if rt.opts.MarketplaceURL != "" {
		url = rt.opts.MarketplaceURL
	} else if env := os.Getenv(MarketplaceURLEnv); env != "" {
		url = env
	}
	if rt.Marketplace != nil && rt.Marketplace.BaseURL() == strings.TrimRight(url, "/") {
		return
	}
	token := ""
	if rt.User != nil {
		token = rt.User.Token
	}
	rt.Marketplace = marketplace.NewClient(marketplace.Config{
		BaseURL: url,
		Token:   token,
		Timeout: timeout,
		Logger:  rt.opts.Telemetry.Logger,
		Tracer:  rt.Tracer,
	})
}
