package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
	"github.com/mooreio/mio/pkg/telemetry"
)

// ExitError carries the exit code of a run that reported errors. The errors
// themselves have already been printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// globals holds the flags shared by every subcommand.
type globals struct {
	version string
	wd      string
	dbg     bool
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	rootCmd.SetArgs(globalArgs(os.Args[1:]))
	return rootCmd.ExecuteContext(ctx)
}

// globalArgs turns a -C given before the subcommand into --wd. After the
// subcommand, -C keeps its local meaning (the compile step of 'mio sim').
func globalArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return append(out, args[i:]...)
		case arg == "-C":
			arg = "--wd"
		case strings.HasPrefix(arg, "-C"):
			arg = "--wd=" + strings.TrimPrefix(arg[2:], "=")
		case !strings.HasPrefix(arg, "-"):
			return append(out, args[i:]...)
		}
		out = append(out, arg)
		if arg == "--wd" && i+1 < len(args) {
			i++
			out = append(out, args[i])
		}
	}
	return out
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	g := &globals{version: version}

	rootCmd := &cobra.Command{
		Use:   "mio",
		Short: "Moore.io - IP and logic simulation workflow client",
		Long: `mio drives the day-to-day work on a hardware design project:

  - Lists the IPs of a project, its installed IPs and the global IP paths
  - Installs IP dependencies from the Moore.io IP marketplace
  - Packages and publishes IPs to the marketplace
  - Compiles, elaborates and simulates testbenches with a logic simulator
  - Keeps a history of the commands run in the project`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceErrors: true,
	}

	// -C is also the compile flag of 'mio sim'; globalArgs maps a leading -C to --wd
	rootCmd.PersistentFlags().StringVar(&g.wd, "wd", "", "run as if mio was started in this directory (-C before the subcommand)")
	rootCmd.PersistentFlags().BoolVar(&g.dbg, "dbg", false, "enable mio tracing output")

	rootCmd.AddCommand(newSimCommand(g))
	rootCmd.AddCommand(newListCommand(g))
	rootCmd.AddCommand(newPackageCommand(g))
	rootCmd.AddCommand(newPublishCommand(g))
	rootCmd.AddCommand(newInstallCommand(g))
	rootCmd.AddCommand(newUninstallCommand(g))
	rootCmd.AddCommand(newLoginCommand(g))
	rootCmd.AddCommand(newLogoutCommand(g))
	rootCmd.AddCommand(newHistoryCommand(g))
	rootCmd.SetHelpCommand(newHelpCommand(g))

	return rootCmd
}

// telemetry builds the logger, metrics and tracer of one run. LOG_LEVEL is
// honored through the zerolog global level; --dbg forces debug.
func (g *globals) telemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if g.dbg {
		cfg = telemetry.DebugConfig()
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		cfg.Logging.Level = zerolog.GlobalLevel().String()
	}
	cfg.ServiceVersion = g.version
	return telemetry.NewTelemetry(cfg)
}

// run executes the engine command built by newCmd and turns its result into
// the process outcome.
func (g *globals) run(cmd *cobra.Command, args []string, newCmd func(rt *root.Runtime) engine.Command) error {
	cmd.SilenceUsage = true

	tel, err := g.telemetry()
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			tel.Logger.WithError(err).Warn("failed to flush telemetry")
		}
	}()

	rt := root.New(root.Options{
		WorkingDir: g.wd,
		Output:     cmd.OutOrStdout(),
		Args:       commandLine(cmd, args),
		Telemetry:  tel,
	})
	defer func() {
		if err := rt.Close(); err != nil {
			tel.Logger.WithError(err).Warn("failed to release runtime")
		}
	}()

	res, err := rt.Run(cmd.Context(), newCmd(rt))
	if err != nil {
		return err
	}
	for _, e := range res.Errors() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", e)
	}
	if code := res.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// commandLine rebuilds the arguments of cmd as they were given, for the history.
func commandLine(cmd *cobra.Command, args []string) []string {
	var line []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Value.Type() == "bool" {
			line = append(line, "--"+f.Name)
			return
		}
		line = append(line, "--"+f.Name+"="+f.Value.String())
	})
	return append(line, args...)
}
