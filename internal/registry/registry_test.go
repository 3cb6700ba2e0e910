package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "runtimes.json")
}

func TestLoadMissingFileGivesEmptyCatalog(t *testing.T) {
	r := Load(testPath(t), nil)
	cat := r.Snapshot()
	if len(cat.Managed) != 0 || len(cat.System) != 0 || len(cat.ProjectPreferences) != 0 {
		t.Fatalf("expected empty catalog, got %+v", cat)
	}
}

func TestLoadCorruptFileGivesEmptyCatalog(t *testing.T) {
	path := testPath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := Load(path, nil)
	if got := r.Snapshot(); len(got.Managed) != 0 {
		t.Fatalf("corrupt catalog should load empty, got %+v", got)
	}
}

func TestRoundTripLosesNothing(t *testing.T) {
	path := testPath(t)
	r := Load(path, nil)
	rt := ManagedRuntime{
		Version:     "3.11.9",
		Path:        "/data/python/3.11.9/bin/python3",
		InstalledAt: time.Now().Truncate(time.Second),
		Origin:      OriginDownloaded,
	}
	r.RecordManaged(rt)
	r.SetSystem([]ManagedRuntime{{Version: "3.12.1", Path: "/usr/bin/python3", Origin: OriginSystem}})
	r.SetPreference("abcd1234", "3.11.9")

	again := Load(path, nil).Snapshot()
	if len(again.Managed) != 1 || again.Managed[0].Version != rt.Version || again.Managed[0].Path != rt.Path {
		t.Fatalf("managed entry lost in round trip: %+v", again.Managed)
	}
	if again.Managed[0].Origin != OriginDownloaded {
		t.Fatalf("origin lost: %+v", again.Managed[0])
	}
	if len(again.System) != 1 || again.System[0].Version != "3.12.1" {
		t.Fatalf("system entry lost: %+v", again.System)
	}
	if v := again.ProjectPreferences["abcd1234"]; v != "3.11.9" {
		t.Fatalf("preference lost: %q", v)
	}
}

func TestRecordManagedReplacesSameVersion(t *testing.T) {
	r := Load(testPath(t), nil)
	r.RecordManaged(ManagedRuntime{Version: "3.10.11", Path: "/old"})
	r.RecordManaged(ManagedRuntime{Version: "3.10.11", Path: "/new"})
	cat := r.Snapshot()
	if len(cat.Managed) != 1 || cat.Managed[0].Path != "/new" {
		t.Fatalf("expected single replaced entry, got %+v", cat.Managed)
	}
}

func TestResolvePathPrefersManaged(t *testing.T) {
	r := Load(testPath(t), nil)
	r.RecordManaged(ManagedRuntime{Version: "3.11.9", Path: "/managed/python"})
	r.SetSystem([]ManagedRuntime{{Version: "3.11.9", Path: "/usr/bin/python3"}})

	got, ok := r.ResolvePath("3.11.9")
	if !ok || got != "/managed/python" {
		t.Fatalf("managed should win: got %q ok=%v", got, ok)
	}
	if _, ok := r.ResolvePath("2.7.18"); ok {
		t.Fatal("unknown version resolved")
	}
}

func TestRemoveManaged(t *testing.T) {
	r := Load(testPath(t), nil)
	r.RecordManaged(ManagedRuntime{Version: "3.9.13", Path: "/p"})
	rm, ok := r.RemoveManaged("3.9.13")
	if !ok || rm.Path != "/p" {
		t.Fatalf("remove returned %+v ok=%v", rm, ok)
	}
	if _, ok := r.RemoveManaged("3.9.13"); ok {
		t.Fatal("second remove reported success")
	}
}

func TestPreferenceMissing(t *testing.T) {
	r := Load(testPath(t), nil)
	if _, ok := r.Preference("deadbeef"); ok {
		t.Fatal("preference for unknown project reported present")
	}
}
