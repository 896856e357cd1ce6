// Package procgroup gives a spawned child's entire descendant tree a
// single containment handle so an interrupt cascade can signal all of it
// at once, not just the direct child. Unix and Windows get the same
// three-call shape (Prepare/AssignJob/Signal) from build-tagged files; callers
// never branch on GOOS themselves.
package procgroup

import "os/exec"

// Signal identifies a stage of the interrupt cascade in a
// platform-neutral way; platform files translate it to the concrete
// mechanism (a Unix signal number, a taskkill invocation, ...).
type Signal int

const (
	// SignalInterrupt asks the group to stop cooperatively (SIGINT-like).
	SignalInterrupt Signal = iota
	// SignalTerminate asks the group to exit (SIGTERM-like).
	SignalTerminate
	// SignalKill unconditionally ends the group (SIGKILL-like).
	SignalKill
)

// Prepare configures cmd, before Start, so that once running it becomes
// the root of its own process group (Unix) or job object (Windows),
// letting Signal reach every descendant rather than just cmd's
// direct child.
func Prepare(cmd *exec.Cmd) {
	prepare(cmd)
}

// Signal delivers sig to every process in the group rooted at cmd,
// which must already have been started with Prepare applied and have a
// non-nil Process. A group that has already exited returns nil.
func Signal(cmd *exec.Cmd, sig Signal) error {
	return signalGroup(cmd, sig)
}

// AssignJob completes group setup after cmd.Start succeeds. On Unix this
// is a no-op: Setpgid in Prepare already made the child its own group
// leader at exec time. On Windows it binds the now-running process to
// the job object created in Prepare.
func AssignJob(cmd *exec.Cmd) error {
	return assignJob(cmd)
}
