package registry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Origin distinguishes runtimes installed by the provisioner from ones
// discovered on the host.
type Origin string

const (
	OriginDownloaded Origin = "downloaded"
	OriginSystem     Origin = "system"
)

// ManagedRuntime describes one installed interpreter. Immutable once
// recorded; removal deletes the whole entry.
type ManagedRuntime struct {
	Version     string    `json:"version"`
	Path        string    `json:"path"`
	InstalledAt time.Time `json:"installed_at"`
	Origin      Origin    `json:"origin"`
}

// Catalog is the persisted document: managed installs, last system scan, and
// per-project version preferences keyed by project id. The project path is
// never stored, only its hash.
type Catalog struct {
	Managed            []ManagedRuntime  `json:"managed"`
	System             []ManagedRuntime  `json:"system"`
	ProjectPreferences map[string]string `json:"projectPreferences"`
}

func emptyCatalog() Catalog {
	return Catalog{ProjectPreferences: make(map[string]string)}
}

// Registry owns the catalog document. Every mutation rewrites the whole
// file; persistence failures are logged and swallowed so a broken catalog
// never takes the host application down with it.
type Registry struct {
	mu     sync.Mutex
	path   string
	cat    Catalog
	logger *slog.Logger
}

// Load reads the catalog document at path. A missing or unparseable document
// degrades to an empty catalog rather than failing startup.
func Load(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{path: path, cat: emptyCatalog(), logger: logger}
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("runtime catalog unreadable, starting empty", "path", path, "error", err)
		}
		return r
	}
	var cat Catalog
	if err := json.Unmarshal(b, &cat); err != nil {
		logger.Warn("runtime catalog corrupt, starting empty", "path", path, "error", err)
		return r
	}
	if cat.ProjectPreferences == nil {
		cat.ProjectPreferences = make(map[string]string)
	}
	r.cat = cat
	return r
}

// save rewrites the full document through a temp file + rename. Best-effort:
// errors are logged, never returned, per the persistence policy.
func (r *Registry) save() {
	b, err := json.MarshalIndent(&r.cat, "", "  ")
	if err != nil {
		r.logger.Warn("catalog marshal failed", "error", err)
		return
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		r.logger.Warn("catalog dir create failed", "dir", dir, "error", err)
		return
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		r.logger.Warn("catalog write failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		r.logger.Warn("catalog rename failed", "path", r.path, "error", err)
		_ = os.Remove(tmp)
	}
}

// RecordManaged appends or replaces the managed entry for rt.Version.
func (r *Registry) RecordManaged(rt ManagedRuntime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.cat.Managed {
		if m.Version == rt.Version {
			r.cat.Managed[i] = rt
			r.save()
			return
		}
	}
	r.cat.Managed = append(r.cat.Managed, rt)
	r.save()
}

// RemoveManaged drops the managed entry for version. Returns the removed
// entry so the caller can delete its install directory.
func (r *Registry) RemoveManaged(version string) (ManagedRuntime, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.cat.Managed {
		if m.Version == version {
			r.cat.Managed = append(r.cat.Managed[:i], r.cat.Managed[i+1:]...)
			r.save()
			return m, true
		}
	}
	return ManagedRuntime{}, false
}

// SetSystem replaces the system-detected list wholesale (the result of a
// fresh scan supersedes any stale view).
func (r *Registry) SetSystem(list []ManagedRuntime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cat.System = append([]ManagedRuntime(nil), list...)
	r.save()
}

// SetPreference records the preferred runtime version for a project id.
func (r *Registry) SetPreference(projectID, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cat.ProjectPreferences[projectID] = version
	r.save()
}

// Preference returns the preferred version for a project id, if any.
func (r *Registry) Preference(projectID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cat.ProjectPreferences[projectID]
	return v, ok
}

// ResolvePath maps a version to an interpreter path, managed entries first,
// then the system list.
func (r *Registry) ResolvePath(version string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.cat.Managed {
		if m.Version == version {
			return m.Path, true
		}
	}
	for _, s := range r.cat.System {
		if s.Version == version {
			return s.Path, true
		}
	}
	return "", false
}

// Snapshot returns a deep copy of the catalog for read-only consumers.
func (r *Registry) Snapshot() Catalog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Catalog{
		Managed:            append([]ManagedRuntime(nil), r.cat.Managed...),
		System:             append([]ManagedRuntime(nil), r.cat.System...),
		ProjectPreferences: make(map[string]string, len(r.cat.ProjectPreferences)),
	}
	for k, v := range r.cat.ProjectPreferences {
		out.ProjectPreferences[k] = v
	}
	return out
}
