package app

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pylaunch/pylaunch/internal/config"
	"github.com/pylaunch/pylaunch/internal/supervisor"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.DataDir = t.TempDir()
	cfg.VersionTablePath = filepath.Join(cfg.DataDir, "python-versions.json")
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestResolveRuntimeNoSelection(t *testing.T) {
	a := testApp(t)
	_, _, err := a.ResolveRuntime(t.TempDir(), "")
	if !errors.Is(err, ErrNoRuntime) {
		t.Fatalf("err = %v, want ErrNoRuntime", err)
	}
}

func TestResolveRuntimePrefersStoredVersion(t *testing.T) {
	a := testApp(t)
	project := t.TempDir()
	v, err := a.resolveVersion(project, "3.12.3")
	if err != nil || v != "3.12.3" {
		t.Fatalf("explicit version: v=%q err=%v", v, err)
	}
}

func TestEnvironmentInfoRequiresRuntime(t *testing.T) {
	a := testApp(t)
	project := t.TempDir()
	if _, _, err := a.EnvironmentInfo(project, ""); !errors.Is(err, ErrNoRuntime) {
		t.Fatalf("err = %v, want ErrNoRuntime", err)
	}
	root, exists, err := a.EnvironmentInfo(project, "3.11.9")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if exists || root == "" {
		t.Fatalf("root=%q exists=%v", root, exists)
	}
}

func TestSessionHooksConcurrent(t *testing.T) {
	a := testApp(t)
	if a.Hist == nil {
		t.Skip("session store unavailable")
	}
	// The supervisor fires the start hook from the starting goroutine and
	// the end hook from the process waiter. Hammer both at once; run under
	// the race detector this catches unsynchronized session tracking.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.onSessionStart("deadbeef", supervisor.ModeNative, 8000, "", time.Now())
		}()
		go func() {
			defer wg.Done()
			a.onSessionEnd(time.Now(), nil)
		}()
	}
	wg.Wait()
	// A final end pairs off whichever start landed last.
	a.onSessionEnd(time.Now(), nil)
	if got := a.sessionID.Load(); got != 0 {
		t.Fatalf("session id left at %d", got)
	}
}
