package engine

// Phase group names in execution order.
const (
	GroupInit                            = "init"
	GroupLoadDefaultConfiguration        = "load_default_configuration"
	GroupLoadUserData                    = "load_user_data"
	GroupAuthenticate                    = "authenticate"
	GroupSaveUserData                    = "save_user_data"
	GroupLocateProjectFile               = "locate_project_file"
	GroupValidateProjectFile             = "validate_project_file"
	GroupLoadUserConfiguration           = "load_user_configuration"
	GroupLoadProjectConfiguration        = "load_project_configuration"
	GroupValidateConfigurationSpace      = "validate_configuration_space"
	GroupSchedulerDiscovery              = "scheduler_discovery"
	GroupServiceDiscovery                = "service_discovery"
	GroupIPDiscovery                     = "ip_discovery"
	GroupCreateCommonFilesAndDirectories = "create_common_files_and_directories"
	GroupMain                            = "main"
	GroupCheck                           = "check"
	GroupReport                          = "report"
	GroupCleanup                         = "cleanup"
	GroupShutdown                        = "shutdown"
	GroupFinal                           = "final"
)

// CallbackKind identifies who is called for a sub-phase, and in which order.
type CallbackKind int

const (
	EnginePre CallbackKind = iota
	CommandPre
	EngineBody
	CommandBody
	EnginePost
	CommandPost
)

// SubPhase is one pre/body/post step of a Group.
type SubPhase struct {
	// Name is the phase name handed to callbacks, e.g. "post_ip_discovery".
	Name string

	// Callbacks are invoked in order between the two Next calls.
	Callbacks []CallbackKind
}

// Group is a named pre/body/post triple.
type Group struct {
	Name      string
	SubPhases []SubPhase

	// Terminal groups run even after a phase asked to end the process.
	Terminal bool

	// EngineGuard, when set, must return true for engine callbacks of this group to run.
	EngineGuard func(cmd Command) bool
}

// PreName returns the name of the pre sub-phase of a group.
func PreName(group string) string { return "pre_" + group }

// PostName returns the name of the post sub-phase of a group.
func PostName(group string) string { return "post_" + group }

func newGroup(name string) Group {
	return Group{
		Name: name,
		SubPhases: []SubPhase{
			{Name: PreName(name), Callbacks: []CallbackKind{EnginePre, CommandPre}},
			{Name: name, Callbacks: []CallbackKind{EngineBody, CommandBody}},
			{Name: PostName(name), Callbacks: []CallbackKind{EnginePost, CommandPost}},
		},
	}
}

// DefaultTable returns the canonical phase-group table. A fresh slice is returned on
// every call so callers may not alter each other's tables.
func DefaultTable() []Group {
	names := GroupNames()
	table := make([]Group, 0, len(names))
	for _, name := range names {
		g := newGroup(name)
		switch name {
		case GroupAuthenticate:
			g.EngineGuard = func(cmd Command) bool { return cmd.NeedsAuthentication() }
		case GroupCleanup, GroupShutdown, GroupFinal:
			g.Terminal = true
		}
		table = append(table, g)
	}
	return table
}

// GroupNames returns the canonical group order.
func GroupNames() []string {
	return []string{
		GroupInit,
		GroupLoadDefaultConfiguration,
		GroupLoadUserData,
		GroupAuthenticate,
		GroupSaveUserData,
		GroupLocateProjectFile,
		GroupValidateProjectFile,
		GroupLoadUserConfiguration,
		GroupLoadProjectConfiguration,
		GroupValidateConfigurationSpace,
		GroupSchedulerDiscovery,
		GroupServiceDiscovery,
		GroupIPDiscovery,
		GroupCreateCommonFilesAndDirectories,
		GroupMain,
		GroupCheck,
		GroupReport,
		GroupCleanup,
		GroupShutdown,
		GroupFinal,
	}
}
