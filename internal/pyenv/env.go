// Package pyenv locates, creates, and populates isolated dependency
// environments, one per (project id, runtime version) pair, always under
// the application data root and never inside the user's project tree.
package pyenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pylaunch/pylaunch/internal/childenv"
	"github.com/pylaunch/pylaunch/internal/pathutil"
	"github.com/pylaunch/pylaunch/internal/pyruntime"
)

var (
	// ErrEnvCreateFailed covers venv/virtualenv creation failures.
	ErrEnvCreateFailed = errors.New("environment creation failed")
	// ErrInstallFailed covers dependency installation failures.
	ErrInstallFailed = errors.New("dependency install failed")
)

// Manager creates and populates environments. Creation strategy depends on
// the runtime's origin: managed (headless) runtimes use virtualenv, system
// runtimes use the native venv module. The two paths are not
// interchangeable; venv against a headless runtime fails outright.
type Manager struct {
	envsRoot        string
	prov            *pyruntime.Provisioner
	defaultPackages []string
	logger          *slog.Logger
}

func NewManager(envsRoot string, prov *pyruntime.Provisioner, defaultPackages []string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if len(defaultPackages) == 0 {
		defaultPackages = []string{"otree"}
	}
	return &Manager{
		envsRoot:        filepath.Clean(envsRoot),
		prov:            prov,
		defaultPackages: defaultPackages,
		logger:          logger,
	}
}

// HandleFor derives the handle for a project path and runtime version.
func (m *Manager) HandleFor(projectPath, version string) Handle {
	return HandleFor(m.envsRoot, pathutil.ProjectID(projectPath), version)
}

// Info reports the environment root for a project/runtime pair and whether
// it exists.
func (m *Manager) Info(projectPath, version string) (string, bool) {
	h := m.HandleFor(projectPath, version)
	_, err := os.Stat(h.RootDir)
	return h.RootDir, err == nil
}

// Ensure returns the environment handle for the project/runtime pair,
// creating the environment with runtimeExe if its root is absent.
// Idempotent per pair: an existing root is reused verbatim with no
// validation of its contents, and different runtime versions for the same
// project get separate roots.
func (m *Manager) Ensure(ctx context.Context, projectPath, version, runtimeExe string) (Handle, error) {
	h := m.HandleFor(projectPath, version)
	if _, err := os.Stat(h.RootDir); err == nil {
		return h, nil
	}
	if err := os.MkdirAll(filepath.Dir(h.RootDir), 0o750); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrEnvCreateFailed, err)
	}

	var err error
	if m.prov.IsManagedPath(runtimeExe) {
		err = m.createWithVirtualenv(ctx, runtimeExe, h.RootDir)
	} else {
		err = m.createWithVenv(ctx, runtimeExe, h.RootDir)
	}
	if err != nil {
		// No half-created environment roots: a later Ensure must retry
		// creation instead of reusing a broken tree.
		_ = os.RemoveAll(h.RootDir)
		return Handle{}, err
	}
	m.logger.Info("environment created", "root", h.RootDir, "runtime", runtimeExe)
	return h, nil
}

// createWithVenv uses the runtime's native mechanism.
func (m *Manager) createWithVenv(ctx context.Context, runtimeExe, root string) error {
	if out, err := m.run(ctx, runtimeExe, "-m", "venv", root); err != nil {
		return fmt.Errorf("%w: venv: %v: %s", ErrEnvCreateFailed, err, firstLine(out))
	}
	return nil
}

// createWithVirtualenv uses the isolation tool installed during
// provisioning, reinstalling it first if it has somehow gone missing.
func (m *Manager) createWithVirtualenv(ctx context.Context, runtimeExe, root string) error {
	out, err := m.run(ctx, runtimeExe, "-m", "virtualenv", root)
	if err != nil && strings.Contains(out, "No module named") {
		m.logger.Warn("virtualenv missing from managed runtime, reinstalling", "runtime", runtimeExe)
		if rerr := m.repairVirtualenv(ctx, runtimeExe); rerr != nil {
			return fmt.Errorf("%w: %v", ErrEnvCreateFailed, rerr)
		}
		out, err = m.run(ctx, runtimeExe, "-m", "virtualenv", root)
	}
	if err != nil {
		return fmt.Errorf("%w: virtualenv: %v: %s", ErrEnvCreateFailed, err, firstLine(out))
	}
	return nil
}

func (m *Manager) repairVirtualenv(ctx context.Context, runtimeExe string) error {
	_, err := m.run(ctx, runtimeExe, "-m", "pip", "install", "--proxy", "", "virtualenv")
	return err
}

// Clean removes every per-runtime environment of the project.
func (m *Manager) Clean(projectPath string) error {
	dir := filepath.Join(m.envsRoot, pathutil.ProjectID(projectPath))
	if !pathutil.Contains(m.envsRoot, dir) {
		return fmt.Errorf("refusing to remove %s outside envs root", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clean environment: %w", err)
	}
	m.logger.Info("environments removed", "dir", dir)
	return nil
}

func (m *Manager) run(ctx context.Context, exe string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, exe, args...) // #nosec G204 -- exe is a registered runtime path
	cmd.Env = childenv.StripProxy(childenv.Base())
	b, err := cmd.CombinedOutput()
	return string(b), err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// discard is used where a sink is optional.
var discard io.Writer = io.Discard
