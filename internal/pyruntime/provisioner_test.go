package pyruntime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pylaunch/pylaunch/internal/registry"
)

func testProvisioner(t *testing.T, entries []VersionEntry) (*Provisioner, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "versions.json")
	b, _ := json.Marshal(entries)
	if err := os.WriteFile(tablePath, b, 0o600); err != nil {
		t.Fatal(err)
	}
	reg := registry.Load(filepath.Join(dir, "runtimes.json"), nil)
	tbl := LoadTable(tablePath, nil)
	return NewProvisioner(filepath.Join(dir, "python"), tbl, reg, nil), reg
}

func TestInstallUnknownVersionFailsFast(t *testing.T) {
	p, _ := testProvisioner(t, nil)
	_, err := p.Install(context.Background(), "1.0.0", nil)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestInstallRefusesExistingDirectory(t *testing.T) {
	p, _ := testProvisioner(t, []VersionEntry{{Version: "9.9.9", URL: "http://unused.test/x.tar.gz"}})
	if err := os.MkdirAll(p.InstallDir("9.9.9"), 0o750); err != nil {
		t.Fatal(err)
	}
	_, err := p.Install(context.Background(), "9.9.9", nil)
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("expected ErrAlreadyInstalled, got %v", err)
	}
}

func TestFailedExtractionLeavesNoResidue(t *testing.T) {
	// Serve bytes that are not a valid gzip stream under a .tar.gz name.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("this is not an archive"))
	}))
	defer srv.Close()

	p, reg := testProvisioner(t, []VersionEntry{{Version: "9.9.9", URL: srv.URL + "/dist.tar.gz"}})
	_, err := p.Install(context.Background(), "9.9.9", nil)
	if !errors.Is(err, ErrExtractFailed) {
		t.Fatalf("expected ErrExtractFailed, got %v", err)
	}
	if _, err := os.Stat(p.InstallDir("9.9.9")); !os.IsNotExist(err) {
		t.Fatalf("partial install directory left behind: %v", err)
	}
	if cat := reg.Snapshot(); len(cat.Managed) != 0 {
		t.Fatalf("failed install was registered: %+v", cat.Managed)
	}
}

func TestFailedDownloadLeavesNoResidue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := testProvisioner(t, []VersionEntry{{Version: "9.9.9", URL: srv.URL + "/dist.tar.gz"}})
	_, err := p.Install(context.Background(), "9.9.9", nil)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if _, err := os.Stat(p.InstallDir("9.9.9")); !os.IsNotExist(err) {
		t.Fatal("partial install directory left behind")
	}
}

func TestIsManagedPath(t *testing.T) {
	p, _ := testProvisioner(t, nil)
	inside := filepath.Join(p.Root(), "3.11.9", "bin", "python3")
	if !p.IsManagedPath(inside) {
		t.Fatalf("%s should be managed", inside)
	}
	if p.IsManagedPath("/usr/bin/python3") {
		t.Fatal("system interpreter reported as managed")
	}
	// Sibling directory sharing the root as a string prefix is not inside.
	if p.IsManagedPath(p.Root() + "-backup/python3") {
		t.Fatal("prefix sibling reported as managed")
	}
}

func TestRemoveUnknownVersion(t *testing.T) {
	p, _ := testProvisioner(t, nil)
	if err := p.Remove("3.4.0"); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}

func TestFindInterpreterFlatAndNested(t *testing.T) {
	flat := t.TempDir()
	if err := os.WriteFile(filepath.Join(flat, "python.exe"), []byte("MZ"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got, err := findInterpreter(flat); err != nil || filepath.Base(got) != "python.exe" {
		t.Fatalf("flat layout: got %q err=%v", got, err)
	}

	nested := t.TempDir()
	bin := filepath.Join(nested, "python", "bin")
	if err := os.MkdirAll(bin, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "python3"), []byte("#!"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got, err := findInterpreter(nested); err != nil || filepath.Base(got) != "python3" {
		t.Fatalf("nested layout: got %q err=%v", got, err)
	}

	if _, err := findInterpreter(t.TempDir()); err == nil {
		t.Fatal("empty dir should have no interpreter")
	}
}
