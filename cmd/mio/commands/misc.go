package commands

import (
	"github.com/spf13/cobra"

	mio "github.com/mooreio/mio/pkg/commands"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
)

// newHelpCommand replaces cobra's help command with the engine one, which
// carries the full documentation of every command.
func newHelpCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:       "help [CMD]",
		Short:     "Show the documentation of a command",
		Long:      longHelp("help"),
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: mio.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewHelp(rt, firstArg(args))
			})
		},
	}
}

func newHistoryCommand(g *globals) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the commands run in the project",
		Long:  longHelp("history"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewHistory(rt, count)
			})
		},
	}
	cmd.Flags().IntVarP(&count, "number", "n", mio.DefaultHistoryCount, "number of runs to show")
	return cmd
}
