// Package pyruntime downloads, installs, and registers isolated Python
// runtimes, and discovers ones already present on the host.
package pyruntime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pylaunch/pylaunch/internal/pathutil"
	"github.com/pylaunch/pylaunch/internal/registry"
)

var (
	// ErrUnsupportedVersion means the version is absent from the table.
	ErrUnsupportedVersion = errors.New("unsupported runtime version")
	// ErrAlreadyInstalled means the install directory already exists; there
	// is no implicit overwrite.
	ErrAlreadyInstalled = errors.New("runtime already installed")
	// ErrNotInstalled is returned by Remove/Repair for unknown versions.
	ErrNotInstalled = errors.New("runtime not installed")
)

// Provisioner installs runtime distributions under its root directory, one
// subdirectory per version, and records successes in the registry.
type Provisioner struct {
	root   string
	table  *Table
	reg    *registry.Registry
	client *http.Client
	logger *slog.Logger
	out    io.Writer // interleaved child output during bootstrap
}

func NewProvisioner(root string, table *Table, reg *registry.Registry, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		root:   filepath.Clean(root),
		table:  table,
		reg:    reg,
		client: &http.Client{},
		logger: logger,
	}
}

// SetOutput directs bootstrap child output (get-pip, pip) to w.
func (p *Provisioner) SetOutput(w io.Writer) { p.out = w }

// Root returns the managed-install root directory.
func (p *Provisioner) Root() string { return p.root }

// Table returns the active version table.
func (p *Provisioner) Table() *Table { return p.table }

// IsManagedPath reports whether exe lives inside the managed install tree.
// This is the strategy-selection check: managed runtimes are assumed to
// lack native venv support and need virtualenv instead.
func (p *Provisioner) IsManagedPath(exe string) bool {
	abs, err := filepath.Abs(exe)
	if err != nil {
		return false
	}
	return pathutil.Contains(p.root, abs)
}

// InstallDir returns the install directory for a version.
func (p *Provisioner) InstallDir(version string) string {
	return filepath.Join(p.root, version)
}

// Install provisions one runtime version: download, extract, bootstrap,
// register. Any failure after directory creation removes the partial
// install entirely before the error propagates; no orphaned half-installs.
func (p *Provisioner) Install(ctx context.Context, version string, onProgress func(float64)) (string, error) {
	entry, ok := p.table.Lookup(version)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}
	dir := p.InstallDir(version)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s at %s", ErrAlreadyInstalled, version, dir)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create install dir: %w", err)
	}

	exe, err := p.installInto(ctx, entry, version, dir, onProgress)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			p.logger.Warn("partial install cleanup failed", "dir", dir, "error", rmErr)
		}
		return "", err
	}

	p.reg.RecordManaged(registry.ManagedRuntime{
		Version:     version,
		Path:        exe,
		InstalledAt: time.Now(),
		Origin:      registry.OriginDownloaded,
	})
	p.logger.Info("runtime installed", "version", version, "path", exe)
	return exe, nil
}

func (p *Provisioner) installInto(ctx context.Context, entry VersionEntry, version, dir string, onProgress func(float64)) (string, error) {
	tmp := filepath.Join(dir, "distribution"+archiveExt(entry.URL))
	p.logger.Info("downloading runtime", "version", version, "url", entry.URL)
	if err := download(ctx, p.client, entry.URL, tmp, onProgress); err != nil {
		return "", err
	}
	if err := extractArchive(tmp, dir); err != nil {
		return "", err
	}
	exe, err := findInterpreter(dir)
	if err != nil {
		return "", err
	}
	if err := p.bootstrap(ctx, version, dir, exe); err != nil {
		return "", err
	}
	_ = os.Remove(tmp)
	return exe, nil
}

// Remove deletes a managed runtime's install directory and drops its
// registry entry.
func (p *Provisioner) Remove(version string) error {
	if _, ok := p.reg.RemoveManaged(version); !ok {
		return fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}
	dir := p.InstallDir(version)
	if !pathutil.Contains(p.root, dir) {
		return fmt.Errorf("refusing to remove %s outside managed root", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove install dir: %w", err)
	}
	p.logger.Info("runtime removed", "version", version)
	return nil
}

// Repair re-runs the bootstrap chain against an existing managed install:
// site-import rewrite, get-pip when pip is missing, virtualenv. Useful when
// a previous bootstrap was interrupted after extraction succeeded.
func (p *Provisioner) Repair(ctx context.Context, version string) error {
	dir := p.InstallDir(version)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, version)
	}
	exe, err := findInterpreter(dir)
	if err != nil {
		return err
	}
	if pth, ok := pthFile(dir); ok {
		if err := enableSiteImports(pth); err != nil {
			return err
		}
	}
	if !hasPip(ctx, exe) {
		getPip := filepath.Join(dir, "get-pip.py")
		if err := download(ctx, p.client, getPipURL(version), getPip, nil); err != nil {
			return fmt.Errorf("%w: fetch get-pip: %v", ErrBootstrapFailed, err)
		}
		if err := p.runPython(ctx, exe, getPip, "--no-warn-script-location"); err != nil {
			return fmt.Errorf("%w: get-pip: %v", ErrBootstrapFailed, err)
		}
		_ = os.Remove(getPip)
	}
	if err := p.installVirtualenv(ctx, exe); err != nil {
		return err
	}
	p.logger.Info("runtime repaired", "version", version)
	return nil
}

// findInterpreter locates the interpreter executable inside an install
// directory, covering both flat embeddable layouts and standalone tarballs
// that nest a python/bin tree one level down.
func findInterpreter(installDir string) (string, error) {
	names := []string{
		"python.exe",
		filepath.Join("bin", "python3"),
		filepath.Join("bin", "python"),
		"python3",
		"python",
	}
	roots := []string{installDir}
	dirents, _ := os.ReadDir(installDir)
	for _, de := range dirents {
		if de.IsDir() {
			roots = append(roots, filepath.Join(installDir, de.Name()))
		}
	}
	for _, root := range roots {
		for _, name := range names {
			cand := filepath.Join(root, name)
			if info, err := os.Stat(cand); err == nil && !info.IsDir() {
				return cand, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no interpreter under %s", ErrExtractFailed, installDir)
}

func archiveExt(url string) string {
	switch {
	case strings.HasSuffix(url, ".zip"):
		return ".zip"
	case strings.HasSuffix(url, ".tgz"):
		return ".tgz"
	default:
		return ".tar.gz"
	}
}
