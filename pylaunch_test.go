package pylaunch

import (
	"context"
	"path/filepath"
	"testing"
)

func testLauncher(t *testing.T) *Launcher {
	t.Helper()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.DataDir = t.TempDir()
	cfg.VersionTablePath = filepath.Join(cfg.DataDir, "python-versions.json")
	l, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestLauncherFacadeStatusAndRuntimes(t *testing.T) {
	l := testLauncher(t)
	if st := l.Status(); st.State != "stopped" {
		t.Fatalf("fresh launcher state = %q", st.State)
	}
	cat := l.Runtimes()
	if len(cat.Managed) != 0 || len(cat.System) != 0 {
		t.Fatalf("fresh catalog not empty: %+v", cat)
	}
}

func TestLauncherEnvironmentInfo(t *testing.T) {
	l := testLauncher(t)
	project := t.TempDir()
	root, exists, err := l.EnvironmentInfo(project, "3.11.9")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if exists || root == "" {
		t.Fatalf("root=%q exists=%v", root, exists)
	}
}

func TestLauncherStopIsIdempotent(t *testing.T) {
	l := testLauncher(t)
	if err := l.StopServer(context.Background()); err != nil {
		t.Fatalf("stop on idle launcher: %v", err)
	}
}

func TestLauncherSubscribe(t *testing.T) {
	l := testLauncher(t)
	ch, cancel := l.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("cancelled subscription still delivers")
	}
}
