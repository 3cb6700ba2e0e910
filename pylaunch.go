package pylaunch

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pylaunch/pylaunch/internal/app"
	"github.com/pylaunch/pylaunch/internal/config"
	"github.com/pylaunch/pylaunch/internal/events"
	"github.com/pylaunch/pylaunch/internal/registry"
	"github.com/pylaunch/pylaunch/internal/server"
	"github.com/pylaunch/pylaunch/internal/sessions"
	"github.com/pylaunch/pylaunch/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Catalog = registry.Catalog

type ManagedRuntime = registry.ManagedRuntime

type Event = events.Event

type Mode = supervisor.Mode

type ServerStatus = supervisor.Status

type SessionRecord = sessions.Record

const (
	ModeNative        = supervisor.ModeNative
	ModeContainerized = supervisor.ModeContainerized
)

// LoadConfig reads the TOML config at path ("" for pure defaults).
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Launcher is a thin facade over the internal application context. It
// provides a stable public API for embedding.
type Launcher struct{ inner *app.App }

func New(cfg Config, logger *slog.Logger) (*Launcher, error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Launcher{inner: a}, nil
}

func (l *Launcher) Runtimes() Catalog { return l.inner.Reg.Snapshot() }
func (l *Launcher) ScanSystemRuntimes(ctx context.Context) []ManagedRuntime {
	return l.inner.ScanSystemRuntimes(ctx)
}
func (l *Launcher) DownloadRuntime(ctx context.Context, version string) (string, error) {
	return l.inner.DownloadRuntime(ctx, version)
}
func (l *Launcher) DeleteRuntime(version string) error { return l.inner.Prov.Remove(version) }
func (l *Launcher) RepairRuntime(ctx context.Context, version string) error {
	return l.inner.Prov.Repair(ctx, version)
}
func (l *Launcher) ValidateProject(projectPath string) (string, string, error) {
	return l.inner.ValidateProject(projectPath)
}
func (l *Launcher) SetProjectRuntime(projectPath, version string) error {
	return l.inner.SetProjectRuntime(projectPath, version)
}
func (l *Launcher) InstallDependencies(ctx context.Context, projectPath, version string) error {
	return l.inner.InstallDependencies(ctx, projectPath, version)
}
func (l *Launcher) CheckDependencies(projectPath, version string) (bool, error) {
	return l.inner.CheckDependencies(projectPath, version)
}
func (l *Launcher) EnvironmentInfo(projectPath, version string) (string, bool, error) {
	return l.inner.EnvironmentInfo(projectPath, version)
}
func (l *Launcher) CleanEnvironment(projectPath string) error {
	return l.inner.CleanEnvironment(projectPath)
}
func (l *Launcher) StartServer(ctx context.Context, mode Mode, projectPath, version string) error {
	return l.inner.StartServer(ctx, mode, projectPath, version)
}
func (l *Launcher) StopServer(ctx context.Context) error { return l.inner.StopServer(ctx) }
func (l *Launcher) Status() ServerStatus                 { return l.inner.ServerStatus() }
func (l *Launcher) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	return l.inner.Sessions(ctx, limit)
}
func (l *Launcher) SessionLog(ctx context.Context, id int64) ([]byte, error) {
	return l.inner.SessionLog(ctx, id)
}

// Subscribe returns a live event channel and its cancel function.
func (l *Launcher) Subscribe() (<-chan Event, func()) { return l.inner.Bus.Subscribe() }

// APIServer starts the HTTP/WS API for the desktop UI on addr.
func (l *Launcher) APIServer(addr string) *http.Server {
	return server.NewServer(addr, l.inner)
}

// Close stops the supervised server (shutdown hook) and releases resources.
func (l *Launcher) Close() { l.inner.Close() }
