//go:build !unix

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func detach(*exec.Cmd) {}

// Signal terminates pid. Only kill is supported on this platform, so sig is
// ignored.
func Signal(pid int, _ syscall.Signal) error {
	if pid <= 0 {
		return errors.New("invalid pid")
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// Alive reports whether pid names a live process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
