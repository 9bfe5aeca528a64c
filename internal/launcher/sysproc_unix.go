//go:build unix

package launcher

import (
	"errors"
	"os/exec"
	"syscall"
)

// detach puts a service child in its own process group so terminal signals
// aimed at the shell do not reach it and Signal can address the whole tree.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Signal delivers sig to the process group led by pid, falling back to the
// single process when pid does not lead a group.
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return errors.New("invalid pid")
	}
	if err := syscall.Kill(-pid, sig); err == nil {
		return nil
	}
	return syscall.Kill(pid, sig)
}

// Alive reports whether pid names a live process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
