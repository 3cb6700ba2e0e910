//go:build windows

package supervisor

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// treeKiller terminates the full process tree by PID. The server is spawned
// through a shell wrapper on this platform, so killing only the direct
// child would orphan the real server process. As a fallback it also kills
// whatever is bound to the last-known port, covering the case where the
// PID-based kill raced with the process detaching.
type treeKiller struct{}

func newKiller() killer { return treeKiller{} }

func (k treeKiller) Terminate(pid, port int) error {
	return k.kill(pid, port, false)
}

func (k treeKiller) KillHard(pid, port int) error {
	return k.kill(pid, port, true)
}

func (treeKiller) kill(pid, port int, force bool) error {
	args := []string{"/T", "/PID", strconv.Itoa(pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}
	err := exec.Command("taskkill", args...).Run() // #nosec G204 -- fixed binary, numeric pid
	if port > 0 {
		if byPort := killByPort(port, force); byPort == nil {
			return nil
		}
	}
	return err
}

// killByPort finds the owner of port via netstat and terminates it.
func killByPort(port int, force bool) error {
	out, err := exec.Command("netstat", "-ano", "-p", "tcp").Output()
	if err != nil {
		return fmt.Errorf("netstat: %w", err)
	}
	needle := fmt.Sprintf(":%d", port)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || !strings.HasSuffix(fields[1], needle) {
			continue
		}
		if !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		pid, perr := strconv.Atoi(fields[4])
		if perr != nil || pid <= 0 {
			continue
		}
		args := []string{"/T", "/PID", strconv.Itoa(pid)}
		if force {
			args = append([]string{"/F"}, args...)
		}
		return exec.Command("taskkill", args...).Run() // #nosec G204 -- fixed binary, numeric pid
	}
	return fmt.Errorf("no listener on port %d", port)
}
