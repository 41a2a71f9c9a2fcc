// Package commands holds one engine.Command per mio verb. Each command keeps
// its parsed options and a handle on the run's root.Runtime, and overrides only
// the sub-phases it needs:
//
//	rt := root.New(root.Options{Args: os.Args[1:]})
//	defer rt.Close()
//	res, err := rt.Run(ctx, commands.NewList(rt, commands.ListOptions{}))
//
// Commands never exit the process. Failures are attached to the phase and the
// caller decides the exit code from the engine.Result.
package commands
