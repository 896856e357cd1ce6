//go:build windows

package procgroup

import (
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// jobHandles associates a started *exec.Cmd with the job object created
// for it in prepare, since exec.Cmd has no field of its own to carry one.
var (
	jobMu      sync.Mutex
	jobHandles = map[*exec.Cmd]windows.Handle{}
)

func prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	_, _ = windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	)

	jobMu.Lock()
	jobHandles[cmd] = job
	jobMu.Unlock()
}

// assignJob binds the now-running child to the job object created in
// prepare so a later signalGroup reaches its whole descendant tree. There
// is a small window between Start and assignJob in which a
// fast-spawning grandchild could escape containment; this is the same
// tradeoff the reference service accepts for its Unix process-group
// cascade and is documented as a known gap on this platform.
func assignJob(cmd *exec.Cmd) error {
	jobMu.Lock()
	job, ok := jobHandles[cmd]
	jobMu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}

	handle, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(cmd.Process.Pid))
	if err != nil {
		return err
	}
	defer windows.CloseHandle(handle)
	return windows.AssignProcessToJobObject(job, handle)
}

func signalGroup(cmd *exec.Cmd, sig Signal) error {
	jobMu.Lock()
	job, ok := jobHandles[cmd]
	jobMu.Unlock()
	if !ok {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}

	switch sig {
	case SignalKill, SignalTerminate:
		return windows.TerminateJobObject(job, 1)
	default:
		// Windows has no clean equivalent of a soft interrupt for an
		// arbitrary job object; that cascade stage is a no-op here and
		// the cascade proceeds to the terminate stage on its own timer.
		return nil
	}
}
