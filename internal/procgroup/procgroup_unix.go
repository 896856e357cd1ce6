//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func assignJob(cmd *exec.Cmd) error {
	return nil
}

func signalGroup(cmd *exec.Cmd, sig Signal) error {
	if cmd.Process == nil {
		return nil
	}
	var unixSig unix.Signal
	switch sig {
	case SignalInterrupt:
		unixSig = unix.SIGINT
	case SignalTerminate:
		unixSig = unix.SIGTERM
	default:
		unixSig = unix.SIGKILL
	}
	// Negative pid addresses the whole process group rooted at cmd's
	// child, which Prepare made the group leader.
	err := unix.Kill(-cmd.Process.Pid, unixSig)
	if err == unix.ESRCH {
		return nil
	}
	return err
}
