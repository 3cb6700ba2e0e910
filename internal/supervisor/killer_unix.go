//go:build !windows

package supervisor

import "syscall"

// groupKiller signals the whole process group via the negated PID, falling
// back to a direct signal when the group signal fails (the child may have
// left its group). The port argument is unused here; port-based fallback
// is a Windows-family concern.
type groupKiller struct{}

func newKiller() killer { return groupKiller{} }

func (groupKiller) Terminate(pid, _ int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		return syscall.Kill(pid, syscall.SIGTERM)
	}
	return nil
}

func (groupKiller) KillHard(pid, _ int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}
