package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/root"
)

var helpTexts = map[string]string{
	"sim": `Moore.io Logic Simulation Command
   Compiles, elaborates and simulates an IP with the configured logic simulator. Steps can be
   selected individually; a selection must not skip a step in the middle of the sequence
   (-D, -C, -E, -S), so '-CS' is rejected.

   Compilation-time arguments take the form +define+NAME[=VALUE]; any other +NAME[=VALUE]
   argument is passed to the simulation.

Usage:
   mio sim IP [OPTIONS] [--args ARG ...]

Options:
   -t TEST     , --test      TEST       UVM test to run.
   -s SEED     , --seed      SEED       Randomization seed. [default: 1]
   -v VERBOSITY, --verbosity VERBOSITY  UVM verbosity: none, low, medium, high, debug. [default: medium]
   -e ERRORS   , --errors    ERRORS     Number of errors at which a step is stopped. [default: 10]
   -a APP      , --app       APP        Simulator to use. [default: logic_simulation.default_simulator]
   -w          , --waves                Capture waves.
   -c          , --cov                  Capture code and functional coverage.
   -g          , --gui                  Run the simulator in graphical mode.
                 --args      ARGS       Compilation (+define+NAME[=VALUE]) or simulation (+NAME[=VALUE]) arguments.

   -D   Prepare the Device-Under-Test.
   -C   Compile the IP.
   -E   Elaborate the IP.
   -S   Simulate the IP.

Examples:
   mio sim uart_tb -t smoke -s 1 -w -c      # Compile, elaborate and simulate test 'smoke' with waves and coverage.
   mio sim uart_tb -t smoke --args +NPKTS=10  # Pass a simulation argument.
   mio sim uart_tb -S -t smoke -s 42 -v high  # Only simulate, with UVM_HIGH verbosity.
   mio sim uart_tb -CE                        # Only compile and elaborate.`,

	"list": `Moore.io IP List Command
   Lists the IPs found in the project, the installed directory and the global paths.

Usage:
   mio list [OPTIONS]

Options:
   -w, --watch  Keep listing whenever an ip.yml file is added, edited or removed.

Examples:
   mio list
   mio list --watch`,

	"package": `Moore.io IP Package Command
   Writes a compressed tarball of a local IP.

Usage:
   mio package IP DEST

Examples:
   mio package uart ./uart.tgz  # Package IP 'uart' into ./uart.tgz`,

	"publish": `Moore.io IP Publish Command
   Packages an IP and publishes it to the Moore.io IP Marketplace. Commercial IPs are encrypted
   for every simulator listed in their descriptor before upload.

Usage:
   mio publish IP [OPTIONS]

Options:
   -u USERNAME, --username USERNAME  Moore.io username.
   -p PASSWORD, --password PASSWORD  Moore.io password (requires -u).
   -o ORG     , --org      ORG       Customer organization. Commercial IPs only.

Examples:
   mio publish uart                        # Publish IP 'uart'.
   mio publish uart -u ci_bot -p s3cr3t    # Publish with inline credentials.
   mio publish uart -o chip_inc            # Publish IP 'uart' for customer 'chip_inc'.`,

	"install": `Moore.io IP Install Command
   Installs the missing dependencies of one IP, or of every IP in the project, from the
   Moore.io IP Marketplace.

Usage:
   mio install [IP]

Examples:
   mio install        # Install every missing dependency.
   mio install uart   # Install the dependencies of IP 'uart'.`,

	"uninstall": `Moore.io IP Uninstall Command
   Removes an installed IP and its installed dependencies, or every installed IP. Local IPs are
   never removed.

Usage:
   mio uninstall [IP]

Examples:
   mio uninstall        # Remove every installed IP.
   mio uninstall uart   # Remove IP 'uart' and its installed dependencies.`,

	"login": `Moore.io User Login Command
   Authenticates with the Moore.io server and keeps the token for later commands.

Usage:
   mio login [OPTIONS]

Options:
   -u USERNAME, --username USERNAME  Moore.io username.
   -p PASSWORD, --password PASSWORD  Moore.io password (requires -u). Defaults to MIO_AUTHENTICATION_PASSWORD.

Examples:
   mio login -u jdoe -p s3cr3t`,

	"logout": `Moore.io User Logout Command
   Forgets the token of the current user.

Usage:
   mio logout`,

	"help": `Moore.io Help Command
   Prints the documentation of a command.

Usage:
   mio help CMD

Examples:
   mio help sim  # Summary of the logic simulation command and its options.`,

	"history": `Moore.io History Command
   Prints the most recent runs recorded in the project.

Usage:
   mio history [OPTIONS]

Options:
   -n COUNT, --count COUNT  Number of runs to print. [default: 20]

Examples:
   mio history -n 5`,
}

// Names returns every command name, sorted.
func Names() []string {
	names := make([]string, 0, len(helpTexts))
	for name := range helpTexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HelpText returns the documentation of a command.
func HelpText(name string) (string, bool) {
	text, ok := helpTexts[name]
	return text, ok
}

// Help prints the documentation of another command. It ends the run in init,
// so it works outside a project.
type Help struct {
	engine.Base
	rt     *root.Runtime
	target string
}

// NewHelp creates the help command for target.
func NewHelp(rt *root.Runtime, target string) *Help {
	return &Help{Base: engine.Base{CommandName: "help"}, rt: rt, target: target}
}

// Hooks implements engine.Command.
func (c *Help) Hooks() engine.Hooks {
	return engine.Hooks{
		engine.GroupInit: c.init,
	}
}

func (c *Help) init(_ context.Context, p *engine.Phase) {
	target := strings.ToLower(strings.TrimSpace(c.target))
	if target == "" {
		fmt.Fprintf(c.rt.Out, "Usage:\n   mio help CMD\n\nCommands:\n   %s\n", strings.Join(Names(), "\n   "))
		p.EndProcess("")
		return
	}
	text, ok := HelpText(target)
	if !ok {
		fail(p, engine.NewUserError(fmt.Sprintf("unknown command '%s'", c.target), nil).
			WithCode(engine.ErrCodeNotFound).
			WithDetail("commands", strings.Join(Names(), ", ")))
		return
	}
	fmt.Fprintln(c.rt.Out, text)
	p.EndProcess("")
}
