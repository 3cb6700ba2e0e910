package pyruntime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// VersionEntry maps an installable interpreter version to its distribution
// archive URL. The on-disk table is a JSON array of these, hand-editable by
// advanced users.
type VersionEntry struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Table is the version catalog the provisioner consults. Unknown versions
// fail fast at lookup time.
type Table struct {
	entries []VersionEntry
}

// defaultEntries returns the built-in table for the current platform:
// embeddable zips on Windows, standalone install-only tarballs elsewhere.
func defaultEntries() []VersionEntry {
	versions := []string{"3.8.10", "3.9.13", "3.10.11", "3.11.9", "3.12.3"}
	out := make([]VersionEntry, 0, len(versions))
	for _, v := range versions {
		out = append(out, VersionEntry{Version: v, URL: distributionURL(v)})
	}
	return out
}

func distributionURL(version string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("https://www.python.org/ftp/python/%s/python-%s-embed-amd64.zip", version, version)
	}
	arch := "x86_64"
	if runtime.GOARCH == "arm64" {
		arch = "aarch64"
	}
	osPart := "unknown-linux-gnu"
	if runtime.GOOS == "darwin" {
		osPart = "apple-darwin"
	}
	return fmt.Sprintf("https://github.com/indygreg/python-build-standalone/releases/download/20240415/cpython-%s+20240415-%s-%s-install_only.tar.gz",
		version, arch, osPart)
}

// LoadTable reads the override document at path. On first run the file is
// created with the built-in defaults so users have something to edit. An
// unreadable or corrupt override degrades to the defaults with a warning,
// matching the catalog's tolerance for broken persisted state.
func LoadTable(path string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t := &Table{entries: defaultEntries()}
			t.write(path, logger)
			return t
		}
		logger.Warn("version table unreadable, using defaults", "path", path, "error", err)
		return &Table{entries: defaultEntries()}
	}
	var entries []VersionEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		logger.Warn("version table corrupt, using defaults", "path", path, "error", err)
		return &Table{entries: defaultEntries()}
	}
	return &Table{entries: entries}
}

func (t *Table) write(path string, logger *slog.Logger) {
	b, err := json.MarshalIndent(t.entries, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		logger.Warn("version table dir create failed", "error", err)
		return
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		logger.Warn("version table write failed", "path", path, "error", err)
	}
}

// Lookup returns the entry for version.
func (t *Table) Lookup(version string) (VersionEntry, bool) {
	for _, e := range t.entries {
		if e.Version == version {
			return e, true
		}
	}
	return VersionEntry{}, false
}

// Versions lists the installable versions in table order.
func (t *Table) Versions() []string {
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.Version)
	}
	return out
}

// versionLine splits "3.8.10" into (3, 8). Unparseable versions report
// (0, 0) and callers treat them as current-line.
func versionLine(version string) (major, minor int) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return 0, 0
	}
	major, _ = strconv.Atoi(parts[0])
	minor, _ = strconv.Atoi(parts[1])
	return major, minor
}
