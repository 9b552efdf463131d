package build

// Phase is the lifecycle state of a single build.
type Phase string

const (
	// PhaseCreated is the initial phase before any work has happened.
	PhaseCreated Phase = "Created"
	// PhaseMediaReady means the install media is cached and verified.
	PhaseMediaReady Phase = "MediaReady"
	// PhaseLaunched means the build VM is running.
	PhaseLaunched Phase = "Launched"
	// PhaseScriptedInstall means the display boot script has completed.
	PhaseScriptedInstall Phase = "ScriptedInstall"
	// PhaseShellReachable means an SSH session to the guest is open.
	PhaseShellReachable Phase = "ShellReachable"
	// PhasePostInstall means the install payload has run successfully.
	PhasePostInstall Phase = "PostInstall"
	// PhaseShuttingDown means the guest has been told to power off.
	PhaseShuttingDown Phase = "ShuttingDown"
	// PhaseDone means the build finished and the VM is gone.
	PhaseDone Phase = "Done"
	// PhaseFailed means the build stopped partway. The VM, if any, is
	// left as-is for inspection.
	PhaseFailed Phase = "Failed"
)

// next returns the phase that follows p on the success path, or PhaseFailed
// if p has no successor.
func next(p Phase) Phase {
	switch p {
	case PhaseCreated:
		return PhaseMediaReady
	case PhaseMediaReady:
		return PhaseLaunched
	case PhaseLaunched:
		return PhaseScriptedInstall
	case PhaseScriptedInstall:
		return PhaseShellReachable
	case PhaseShellReachable:
		return PhasePostInstall
	case PhasePostInstall:
		return PhaseShuttingDown
	case PhaseShuttingDown:
		return PhaseDone
	default:
		return PhaseFailed
	}
}

// CanTransition reports whether a build may move from one phase to another.
// Builds advance strictly along the success path; any non-terminal phase may
// transition to Failed.
func CanTransition(from, to Phase) bool {
	if to == PhaseFailed {
		return !IsTerminal(from)
	}
	if IsTerminal(from) {
		return false
	}
	return next(from) == to
}

// IsTerminal reports whether the phase is final.
func IsTerminal(p Phase) bool {
	return p == PhaseDone || p == PhaseFailed
}
