package commands

import (
	"github.com/spf13/cobra"

	mio "github.com/mooreio/mio/pkg/commands"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
)

func newSimCommand(g *globals) *cobra.Command {
	var opts mio.SimOptions

	cmd := &cobra.Command{
		Use:   "sim IP [+ARG ...]",
		Short: "Compile, elaborate and simulate an IP",
		Long:  longHelp("sim"),
		Example: `  # Compile, elaborate and simulate test 'smoke' with waves
  mio sim uart_tb -t smoke -w

  # Only compile and elaborate
  mio sim uart_tb -CE

  # Pass simulation arguments
  mio sim uart_tb -t smoke --args +NPKTS=10 +define+FAST`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// anything after the IP is taken as --args, so several can follow one flag
			opts.Args = append(opts.Args, args[1:]...)
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewSim(rt, args[0], opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Test, "test", "t", "", "UVM test to run")
	f.IntVarP(&opts.Seed, "seed", "s", mio.DefaultSeed, "randomization seed")
	f.StringVarP(&opts.Verbosity, "verbosity", "v", "medium", "UVM verbosity: none, low, medium, high, debug")
	f.IntVarP(&opts.MaxErrors, "errors", "e", mio.DefaultMaxErrors, "number of errors at which a step is stopped")
	f.StringVarP(&opts.App, "app", "a", "", "simulator to use (default: logic_simulation.default_simulator)")
	f.BoolVarP(&opts.Waves, "waves", "w", false, "capture waves")
	f.BoolVarP(&opts.Coverage, "cov", "c", false, "capture code and functional coverage")
	f.BoolVarP(&opts.GUI, "gui", "g", false, "run the simulator in graphical mode")
	f.BoolVarP(&opts.PrepareDUT, "prepare-dut", "D", false, "prepare the Device-Under-Test")
	f.BoolVarP(&opts.Compile, "compile", "C", false, "compile the IP")
	f.BoolVarP(&opts.Elaborate, "elaborate", "E", false, "elaborate the IP")
	f.BoolVarP(&opts.Simulate, "simulate", "S", false, "simulate the IP")
	f.StringArrayVar(&opts.Args, "args", nil, "compilation (+define+NAME[=VALUE]) or simulation (+NAME[=VALUE]) argument")

	return cmd
}

// longHelp returns the documentation of an engine command.
func longHelp(name string) string {
	text, _ := mio.HelpText(name)
	return text
}
