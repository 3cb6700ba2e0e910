package pyenv

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pylaunch/pylaunch/internal/childenv"
)

// RequirementsFile is the dependency manifest looked up in the project dir.
const RequirementsFile = "requirements.txt"

// pipArgs builds the install arguments for a project: exactly the manifest
// when one exists, otherwise the documented default package set. The
// explicit empty --proxy bypasses pip's proxy auto-detection, a standing
// policy in this deployment context, not a conditional fix.
func (m *Manager) pipArgs(projectPath string) []string {
	args := []string{"install", "--proxy", ""}
	reqs := filepath.Join(projectPath, RequirementsFile)
	if _, err := os.Stat(reqs); err == nil {
		return append(args, "-r", reqs)
	}
	return append(args, m.defaultPackages...)
}

// InstallDeps installs the project's dependencies into the environment.
// stdout and stderr are interleaved and streamed to sink in real time; the
// log stream is the user's only view into a multi-minute pip run.
func (m *Manager) InstallDeps(ctx context.Context, h Handle, projectPath string, sink io.Writer) error {
	if sink == nil {
		sink = discard
	}
	if _, err := os.Stat(h.Pip); err != nil {
		return fmt.Errorf("%w: no pip at %s", ErrInstallFailed, h.Pip)
	}
	args := m.pipArgs(projectPath)
	cmd := exec.CommandContext(ctx, h.Pip, args...) // #nosec G204 -- pip path derived from our env root
	cmd.Env = childenv.StripProxy(childenv.Base())
	cmd.Dir = projectPath
	cmd.Stdout = sink
	cmd.Stderr = sink
	m.logger.Info("installing dependencies", "project", projectPath, "env", h.RootDir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	return nil
}

// CheckDeps reports whether the environment looks ready to serve: the
// server entry point the default package set installs is present.
func (m *Manager) CheckDeps(h Handle) bool {
	info, err := os.Stat(h.Server)
	return err == nil && !info.IsDir()
}
