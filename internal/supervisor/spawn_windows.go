//go:build windows

package supervisor

import (
	"os/exec"
	"strings"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// buildServerCmd spawns through cmd.exe: console-script entry points on
// this platform are .exe shims that re-exec the interpreter, and the shell
// wrapper keeps their PATH resolution consistent. The tree kill in
// killer_windows.go exists precisely because of this wrapper.
func buildServerCmd(exe string, args ...string) *exec.Cmd {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(exe))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	// #nosec G204 -- exe is derived from our own environment root
	return exec.Command("cmd", "/c", strings.Join(parts, " "))
}

// quoteArg wraps whitespace-bearing parts in double quotes so cmd.exe
// keeps an installation path like C:\Users\Jane Doe\... as one token.
func quoteArg(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}
