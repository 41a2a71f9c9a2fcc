package commands

import (
	"github.com/spf13/cobra"

	mio "github.com/mooreio/mio/pkg/commands"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
)

func newLoginCommand(g *globals) *cobra.Command {
	var opts mio.LoginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the marketplace",
		Long:  longHelp("login"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewLogin(rt, opts)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "marketplace username")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "marketplace password (default: "+root.PasswordEnv+")")
	return cmd
}

func newLogoutCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the marketplace credentials",
		Long:  longHelp("logout"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewLogout(rt)
			})
		},
	}
}
