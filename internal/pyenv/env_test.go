package pyenv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pylaunch/pylaunch/internal/pathutil"
	"github.com/pylaunch/pylaunch/internal/pyruntime"
	"github.com/pylaunch/pylaunch/internal/registry"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	reg := registry.Load(filepath.Join(dir, "runtimes.json"), nil)
	tbl := pyruntime.LoadTable(filepath.Join(dir, "versions.json"), nil)
	prov := pyruntime.NewProvisioner(filepath.Join(dir, "python"), tbl, reg, nil)
	return NewManager(filepath.Join(dir, "envs"), prov, nil, nil)
}

func TestHandleForDeterministic(t *testing.T) {
	m := testManager(t)
	p := t.TempDir()
	a := m.HandleFor(p, "3.11.9")
	b := m.HandleFor(p, "3.11.9")
	if a != b {
		t.Fatalf("handles differ for same project: %+v vs %+v", a, b)
	}
	if filepath.Dir(a.RootDir) == p {
		t.Fatal("environment root placed inside the project tree")
	}
}

func TestDistinctProjectsGetDistinctRoots(t *testing.T) {
	m := testManager(t)
	a := m.HandleFor(t.TempDir(), "3.11.9")
	b := m.HandleFor(t.TempDir(), "3.11.9")
	if a.RootDir == b.RootDir {
		t.Fatalf("both projects map to %s", a.RootDir)
	}
}

func TestDistinctRuntimesGetDistinctRoots(t *testing.T) {
	m := testManager(t)
	project := t.TempDir()
	a := m.HandleFor(project, "3.11.9")
	b := m.HandleFor(project, "3.12.3")
	if a.RootDir == b.RootDir {
		t.Fatalf("both runtimes map to %s", a.RootDir)
	}
	// An environment built under one runtime must never shadow the other:
	// a marker in the 3.11 root must not make the 3.12 root look present.
	if err := os.MkdirAll(a.RootDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if _, exists := m.Info(project, "3.11.9"); !exists {
		t.Fatal("created 3.11 root not reported")
	}
	if root, exists := m.Info(project, "3.12.3"); exists {
		t.Fatalf("3.12 reports env at %s built for 3.11", root)
	}
}

func TestEnsureReusesExistingRoot(t *testing.T) {
	m := testManager(t)
	project := t.TempDir()
	h := m.HandleFor(project, "3.11.9")
	// Pre-create the root: Ensure must reuse it verbatim without running
	// any interpreter.
	if err := os.MkdirAll(h.RootDir, 0o750); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(h.RootDir, "marker")
	if err := os.WriteFile(marker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := m.Ensure(context.Background(), project, "3.11.9", "/definitely/not/a/python")
	if err != nil {
		t.Fatalf("Ensure on existing root: %v", err)
	}
	if got != h {
		t.Fatalf("handle changed: %+v vs %+v", got, h)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatal("existing environment contents were disturbed")
	}
}

func TestEnsureFailureLeavesNoRoot(t *testing.T) {
	m := testManager(t)
	project := t.TempDir()
	_, err := m.Ensure(context.Background(), project, "3.11.9", "/definitely/not/a/python")
	if err == nil {
		t.Fatal("Ensure with bogus interpreter should fail")
	}
	root, exists := m.Info(project, "3.11.9")
	if exists {
		t.Fatalf("failed creation left root behind at %s", root)
	}
}

func TestInfoAndClean(t *testing.T) {
	m := testManager(t)
	project := t.TempDir()
	root, exists := m.Info(project, "3.11.9")
	if exists {
		t.Fatalf("fresh project reports existing env at %s", root)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		t.Fatal(err)
	}
	other := m.HandleFor(project, "3.12.3")
	if err := os.MkdirAll(other.RootDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if _, exists := m.Info(project, "3.11.9"); !exists {
		t.Fatal("created root not reported")
	}
	// Clean drops every per-runtime environment of the project.
	if err := m.Clean(project); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, exists := m.Info(project, "3.11.9"); exists {
		t.Fatal("3.11 root survived Clean")
	}
	if _, exists := m.Info(project, "3.12.3"); exists {
		t.Fatal("3.12 root survived Clean")
	}
	// Clean with nothing present is a no-op.
	if err := m.Clean(project); err != nil {
		t.Fatalf("second Clean: %v", err)
	}
}

func TestEnvRootKeyedByProjectAndRuntime(t *testing.T) {
	m := testManager(t)
	project := t.TempDir()
	h := m.HandleFor(project, "3.11.9")
	if filepath.Base(h.RootDir) != "3.11.9" {
		t.Fatalf("root %s not keyed by runtime version", h.RootDir)
	}
	if filepath.Base(filepath.Dir(h.RootDir)) != pathutil.ProjectID(project) {
		t.Fatalf("root %s not keyed by project id", h.RootDir)
	}
}
