// Package engine drives a mio command through its lifecycle.
//
// # Overview
//
// Every invocation of the mio CLI is executed by an Engine as a fixed sequence of
// phase groups:
//
//	init, load_default_configuration, load_user_data, authenticate, save_user_data,
//	locate_project_file, validate_project_file, load_user_configuration,
//	load_project_configuration, validate_configuration_space, scheduler_discovery,
//	service_discovery, ip_discovery, create_common_files_and_directories, main,
//	check, report, cleanup, shutdown, final
//
// Each group runs three sub-phases, pre_<group>, <group> and post_<group>. For every
// sub-phase the engine creates a Phase, moves it to Started, calls the engine bodies
// and the command hook, then moves it to Finished. A phase that does not finish is
// a fatal error.
//
// # Commands
//
// A Command only overrides the hooks it needs:
//
//	type listCommand struct{ engine.Base }
//
//	func (c *listCommand) Hooks() engine.Hooks {
//	    return engine.Hooks{
//	        "post_ip_discovery": func(ctx context.Context, p *engine.Phase) {
//	            // print the IPs
//	            p.EndProcess("")
//	        },
//	    }
//	}
//
// Engine bodies (configuration loading, IP discovery, ...) are injected with
// Options.Bodies so that this package has no knowledge of IPs or configuration.
//
// # Ending a run
//
// A hook may call Phase.EndProcess. The current group completes, then only the
// terminal groups (cleanup, shutdown and final) run. A user error attached to a phase has the
// same effect. A fatal error aborts the run immediately.
//
// # Errors
//
// Errors are classified with EngineError:
//
//   - Fatal: a violated engine contract (phase not finished, command bound twice)
//   - Domain: a failed operation (dependency cycle, failed install)
//   - Recoverable: logged and skipped
//   - User: bad input, ends the run early
//
// Execute returns a Result listing every executed phase and the errors attached to
// them. Result.ExitCode gives the process exit code.
package engine
