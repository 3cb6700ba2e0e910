//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// buildServerCmd executes the entry point directly; no shell wrapper is
// needed on Unix-family systems.
func buildServerCmd(exe string, args ...string) *exec.Cmd {
	// #nosec G204 -- exe is derived from our own environment root
	return exec.Command(exe, args...)
}

// configureSysProcAttr puts the child in its own process group so stop can
// signal the whole tree via the negated PID.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
