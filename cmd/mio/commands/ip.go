package commands

import (
	"github.com/spf13/cobra"

	mio "github.com/mooreio/mio/pkg/commands"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
)

func newListCommand(g *globals) *cobra.Command {
	var opts mio.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the IPs available to the project",
		Long:  longHelp("list"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewList(rt, opts)
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "list again whenever an IP descriptor changes")
	return cmd
}

func newPackageCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "package IP DEST",
		Short: "Package a local IP into a compressed archive",
		Long:  longHelp("package"),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewPackage(rt, args[0], args[1])
			})
		},
	}
}

func newPublishCommand(g *globals) *cobra.Command {
	var opts mio.PublishOptions

	cmd := &cobra.Command{
		Use:   "publish IP",
		Short: "Publish an IP to the marketplace",
		Long:  longHelp("publish"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewPublish(rt, args[0], opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Username, "username", "u", "", "marketplace username")
	f.StringVarP(&opts.Password, "password", "p", "", "marketplace password (default: "+root.PasswordEnv+")")
	f.StringVarP(&opts.Org, "org", "o", "", "customer the IP is published for")
	return cmd
}

func newInstallCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "install [IP]",
		Short: "Install IP dependencies from the marketplace",
		Long:  longHelp("install"),
		Example: `  # Install every missing dependency of the project
  mio install

  # Install one IP and its dependencies
  mio install acme/uart`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewInstall(rt, firstArg(args))
			})
		},
	}
}

func newUninstallCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall [IP]",
		Short: "Remove installed IPs",
		Long:  longHelp("uninstall"),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, args, func(rt *root.Runtime) engine.Command {
				return mio.NewUninstall(rt, firstArg(args))
			})
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
