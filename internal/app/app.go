// Package app owns the long-lived application state: the runtime registry,
// the environment manager, and the one supervised server process. Hidden
// package-level singletons are deliberately absent; everything hangs off
// the App passed into the components that need it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pylaunch/pylaunch/internal/config"
	"github.com/pylaunch/pylaunch/internal/events"
	"github.com/pylaunch/pylaunch/internal/logger"
	"github.com/pylaunch/pylaunch/internal/metrics"
	"github.com/pylaunch/pylaunch/internal/pathutil"
	"github.com/pylaunch/pylaunch/internal/pyenv"
	"github.com/pylaunch/pylaunch/internal/pyruntime"
	"github.com/pylaunch/pylaunch/internal/registry"
	"github.com/pylaunch/pylaunch/internal/sessions"
	"github.com/pylaunch/pylaunch/internal/supervisor"
)

// App wires the components behind the UI command contract.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	Bus  *events.Bus
	Reg  *registry.Registry
	Prov *pyruntime.Provisioner
	Envs *pyenv.Manager
	Sup  *supervisor.Supervisor
	Hist *sessions.Store

	// sessionID tracks the in-flight supervised session row. The start
	// and end hooks fire from different goroutines.
	sessionID atomic.Int64
}

// New builds the application context from configuration.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bus := events.NewBus()
	reg := registry.Load(cfg.CatalogPath(), logger)
	table := pyruntime.LoadTable(cfg.VersionTablePath, logger)
	prov := pyruntime.NewProvisioner(cfg.RuntimesDir(), table, reg, logger)
	prov.SetOutput(bus.LineWriter())
	envs := pyenv.NewManager(cfg.EnvsDir(), prov, cfg.DefaultPackages, logger)
	sup := supervisor.New(bus, cfg.LogsDir(), cfg.ComposeDir(), cfg.DefaultPort, cfg.Log, logger)

	hist, err := sessions.Open(cfg.SessionsPath())
	if err != nil {
		// Session history is an accessory; a broken database must not
		// block the launcher.
		logger.Warn("session store unavailable", "error", err)
		hist = nil
	}

	a := &App{cfg: cfg, logger: logger, Bus: bus, Reg: reg, Prov: prov, Envs: envs, Sup: sup, Hist: hist}
	sup.OnSessionStart = a.onSessionStart
	sup.OnSessionEnd = a.onSessionEnd
	return a, nil
}

func (a *App) onSessionStart(projectID string, mode supervisor.Mode, port int, logPath string, startedAt time.Time) {
	if a.Hist == nil {
		return
	}
	id, err := a.Hist.RecordStart(context.Background(), projectID, string(mode), port, logPath, startedAt)
	if err != nil {
		a.logger.Warn("session record failed", "error", err)
		return
	}
	a.sessionID.Store(id)
}

func (a *App) onSessionEnd(stoppedAt time.Time, exitErr error) {
	if a.Hist == nil {
		return
	}
	id := a.sessionID.Swap(0)
	if id == 0 {
		return
	}
	if err := a.Hist.RecordStop(context.Background(), id, stoppedAt, exitErr); err != nil {
		a.logger.Warn("session close failed", "error", err)
	}
}

// Config returns the effective configuration.
func (a *App) Config() config.Config { return a.cfg }

// ErrNoRuntime means neither an explicit version nor a stored project
// preference names a runtime.
var ErrNoRuntime = errors.New("no runtime selected")

// resolveVersion applies the preference fallback for an empty version.
func (a *App) resolveVersion(projectPath, version string) (string, error) {
	if version != "" {
		return version, nil
	}
	pref, ok := a.Reg.Preference(pathutil.ProjectID(projectPath))
	if !ok {
		return "", fmt.Errorf("%w: project %s", ErrNoRuntime, filepath.Base(projectPath))
	}
	return pref, nil
}

// ResolveRuntime maps (projectPath, version) to a (version, interpreter
// path) pair. An empty version falls back to the project's stored
// preference; the resolved version must be installed.
func (a *App) ResolveRuntime(projectPath, version string) (string, string, error) {
	v, err := a.resolveVersion(projectPath, version)
	if err != nil {
		return "", "", err
	}
	path, ok := a.Reg.ResolvePath(v)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", pyruntime.ErrNotInstalled, v)
	}
	return v, path, nil
}

// DownloadRuntime installs a version, streaming progress events as it goes.
func (a *App) DownloadRuntime(ctx context.Context, version string) (string, error) {
	a.Bus.DownloadStatus(version, events.DownloadDownloading)
	exe, err := a.Prov.Install(ctx, version, func(pct float64) {
		a.Bus.DownloadProgress(version, pct)
		metrics.SetDownloadProgress(version, pct)
	})
	metrics.ClearDownloadProgress(version)
	if err != nil {
		a.Bus.Log(fmt.Sprintf("runtime %s install failed: %v", version, err))
		a.Bus.DownloadStatus(version, events.DownloadError)
		metrics.IncDownload(version, "error")
		return "", err
	}
	a.Bus.DownloadStatus(version, events.DownloadComplete)
	metrics.IncDownload(version, "success")
	return exe, nil
}

// ScanSystemRuntimes probes the host and replaces the catalog's system list.
func (a *App) ScanSystemRuntimes(ctx context.Context) []registry.ManagedRuntime {
	found := pyruntime.ScanSystem(ctx, a.logger)
	a.Reg.SetSystem(found)
	return found
}

// InstallDependencies ensures the environment exists and installs the
// project's dependency set into it, streaming output to the event bus and
// a fresh session log.
func (a *App) InstallDependencies(ctx context.Context, projectPath, version string) error {
	projectPath, err := pathutil.ValidateProjectDir(projectPath)
	if err != nil {
		a.Bus.Log("invalid project path: " + err.Error())
		return err
	}
	version, exe, err := a.ResolveRuntime(projectPath, version)
	if err != nil {
		a.Bus.Log(err.Error())
		return err
	}
	a.Bus.InstallStatus(events.InstallInstalling)
	h, err := a.Envs.Ensure(ctx, projectPath, version, exe)
	if err != nil {
		a.Bus.Log("environment creation failed: " + err.Error())
		a.Bus.InstallStatus(events.InstallError)
		metrics.IncInstall("error")
		return err
	}
	sink, _, err := a.sessionSink(projectPath, "install")
	if err != nil {
		a.Bus.InstallStatus(events.InstallError)
		metrics.IncInstall("error")
		return err
	}
	defer func() { _ = sink.Close() }()
	lw := a.Bus.LineWriter()
	defer func() { _ = lw.Close() }()
	if err := a.Envs.InstallDeps(ctx, h, projectPath, multiSink(sink, lw)); err != nil {
		a.Bus.Log("dependency install failed: " + err.Error())
		a.Bus.InstallStatus(events.InstallError)
		metrics.IncInstall("error")
		return err
	}
	a.Bus.InstallStatus(events.InstallSuccess)
	metrics.IncInstall("success")
	return nil
}

// CheckDependencies reports whether the project's environment can serve.
func (a *App) CheckDependencies(projectPath, version string) (bool, error) {
	projectPath, err := pathutil.ValidateProjectDir(projectPath)
	if err != nil {
		return false, err
	}
	v, err := a.resolveVersion(projectPath, version)
	if err != nil {
		return false, err
	}
	h := a.Envs.HandleFor(projectPath, v)
	return a.Envs.CheckDeps(h), nil
}

// EnvironmentInfo returns {rootDir, exists} for a (project, runtime) pair.
func (a *App) EnvironmentInfo(projectPath, version string) (string, bool, error) {
	projectPath, err := pathutil.ValidateProjectDir(projectPath)
	if err != nil {
		return "", false, err
	}
	v, err := a.resolveVersion(projectPath, version)
	if err != nil {
		return "", false, err
	}
	root, exists := a.Envs.Info(projectPath, v)
	return root, exists, nil
}

// CleanEnvironment removes the project's environment root entirely.
func (a *App) CleanEnvironment(projectPath string) error {
	projectPath, err := pathutil.ValidateProjectDir(projectPath)
	if err != nil {
		return err
	}
	return a.Envs.Clean(projectPath)
}

// ValidateProject checks a chosen project directory and returns its
// cleaned path and stable project id.
func (a *App) ValidateProject(projectPath string) (string, string, error) {
	projectPath, err := pathutil.ValidateProjectDir(projectPath)
	if err != nil {
		return "", "", err
	}
	return projectPath, pathutil.ProjectID(projectPath), nil
}

// SetProjectRuntime records a project's preferred runtime version.
func (a *App) SetProjectRuntime(projectPath, version string) error {
	projectPath, err := pathutil.ValidateProjectDir(projectPath)
	if err != nil {
		return err
	}
	if _, ok := a.Reg.ResolvePath(version); !ok {
		return fmt.Errorf("%w: %s", pyruntime.ErrNotInstalled, version)
	}
	a.Reg.SetPreference(pathutil.ProjectID(projectPath), version)
	return nil
}

// StartServer starts the supervised server in the requested mode.
func (a *App) StartServer(ctx context.Context, mode supervisor.Mode, projectPath, version string) error {
	projectPath, err := pathutil.ValidateProjectDir(projectPath)
	if err != nil {
		a.Bus.Log("invalid project path: " + err.Error())
		return err
	}
	switch mode {
	case supervisor.ModeContainerized:
		if v, err := a.resolveVersion(projectPath, version); err == nil {
			version = v
		}
		return a.Sup.StartContainerized(ctx, projectPath, pythonTag(version))
	default:
		version, exe, err := a.ResolveRuntime(projectPath, version)
		if err != nil {
			a.Bus.Log(err.Error())
			return err
		}
		h, err := a.Envs.Ensure(ctx, projectPath, version, exe)
		if err != nil {
			a.Bus.Log("environment creation failed: " + err.Error())
			return err
		}
		return a.Sup.StartNative(ctx, h, projectPath)
	}
}

// StopServer stops the supervised server, if any.
func (a *App) StopServer(ctx context.Context) error { return a.Sup.Stop(ctx) }

// ServerStatus returns the supervisor snapshot.
func (a *App) ServerStatus() supervisor.Status { return a.Sup.Snapshot() }

// Sessions lists recent supervised sessions, newest first.
func (a *App) Sessions(ctx context.Context, limit int) ([]sessions.Record, error) {
	if a.Hist == nil {
		return nil, nil
	}
	return a.Hist.List(ctx, limit)
}

// sessionLogTail caps how much of a session log is returned per request.
const sessionLogTail = 256 * 1024

// SessionLog returns the tail of a recorded session's log file. The stored
// path is re-validated against the logs root before reading: the database is
// writable state and must not become a read-anywhere primitive.
func (a *App) SessionLog(ctx context.Context, id int64) ([]byte, error) {
	if a.Hist == nil {
		return nil, fmt.Errorf("session history unavailable")
	}
	rec, err := a.Hist.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.LogPath == "" {
		return nil, fmt.Errorf("%w: session %d has no log", pathutil.ErrInvalidPath, id)
	}
	path, err := pathutil.ValidateFilePath(rec.LogPath, a.cfg.LogsDir())
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- containment-checked above
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat session log: %w", err)
	}
	if info.Size() > sessionLogTail {
		if _, err := f.Seek(-sessionLogTail, io.SeekEnd); err != nil {
			return nil, fmt.Errorf("seek session log: %w", err)
		}
	}
	return io.ReadAll(f)
}

// Close runs the shutdown hook and releases resources. Synchronous: the
// supervised process must not outlive the application.
func (a *App) Close() {
	a.Sup.Shutdown()
	if a.Hist != nil {
		_ = a.Hist.Close()
	}
}

func (a *App) sessionSink(projectPath, op string) (io.WriteCloser, string, error) {
	id := pathutil.ProjectID(projectPath)
	w, path, err := logger.SessionSink(filepath.Join(a.cfg.LogsDir(), id), op, a.cfg.Log)
	if err != nil {
		a.Bus.Log("log sink unavailable: " + err.Error())
	}
	return w, path, err
}

// multiSink interleaves command output into both the session log file and
// the live event stream.
func multiSink(ws ...io.Writer) io.Writer { return io.MultiWriter(ws...) }

// pythonTag reduces a full version to the major.minor image tag used by the
// containerized run configuration.
func pythonTag(version string) string {
	if version == "" {
		return ""
	}
	parts := []rune(version)
	dots := 0
	for i, r := range parts {
		if r == '.' {
			dots++
			if dots == 2 {
				return string(parts[:i])
			}
		}
	}
	return version
}
