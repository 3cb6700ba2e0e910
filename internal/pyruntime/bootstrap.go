package pyruntime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pylaunch/pylaunch/internal/childenv"
)

// ErrBootstrapFailed covers failures while making a headless distribution
// usable: site-import rewrite, get-pip, or the virtualenv install.
var ErrBootstrapFailed = errors.New("bootstrap failed")

const genericGetPipURL = "https://bootstrap.pypa.io/get-pip.py"

// getPipURL returns the bootstrap installer URL for a version line. pypa
// stops updating get-pip for EOL lines, so 3.8 and older need the pinned
// per-line URL; newer lines always work with the generic latest one.
func getPipURL(version string) string {
	major, minor := versionLine(version)
	if major == 3 && minor > 0 && minor <= 8 {
		return fmt.Sprintf("https://bootstrap.pypa.io/pip/%d.%d/get-pip.py", major, minor)
	}
	return genericGetPipURL
}

// pthFile locates the python*._pth site-import configuration of an
// embeddable distribution. Its presence is what marks a distribution as
// headless.
func pthFile(installDir string) (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(installDir, "python*._pth"))
	if len(matches) == 0 {
		// Standalone builds nest the tree one level down.
		matches, _ = filepath.Glob(filepath.Join(installDir, "*", "python*._pth"))
	}
	if len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// enableSiteImports rewrites the ._pth file so the import system loads
// site-packages: the shipped "#import site" is uncommented, and both the
// line and the site-packages path are appended if absent.
func enableSiteImports(pth string) error {
	b, err := os.ReadFile(pth)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrBootstrapFailed, pth, err)
	}
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	sawImport := false
	sawSitePackages := false
	for i, ln := range lines {
		t := strings.TrimSpace(ln)
		if t == "#import site" {
			lines[i] = "import site"
			sawImport = true
		} else if t == "import site" {
			sawImport = true
		}
		if strings.Contains(t, "site-packages") {
			sawSitePackages = true
		}
	}
	if !sawSitePackages {
		lines = append(lines, filepath.Join("Lib", "site-packages"))
	}
	if !sawImport {
		lines = append(lines, "import site")
	}
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	if err := os.WriteFile(pth, []byte(out), 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrBootstrapFailed, pth, err)
	}
	return nil
}

// bootstrap takes a freshly extracted headless distribution and leaves it
// with a working pip plus virtualenv. All child invocations run with proxy
// variables stripped: bootstrap commonly happens on machines whose proxy
// configuration is broken or irrelevant for these hosts.
func (p *Provisioner) bootstrap(ctx context.Context, version, installDir, exe string) error {
	pth, ok := pthFile(installDir)
	if !ok {
		// Native-tooling distribution; nothing to do.
		return nil
	}
	if err := enableSiteImports(pth); err != nil {
		return err
	}

	getPip := filepath.Join(installDir, "get-pip.py")
	if err := download(ctx, p.client, getPipURL(version), getPip, nil); err != nil {
		return fmt.Errorf("%w: fetch get-pip: %v", ErrBootstrapFailed, err)
	}
	if err := p.runPython(ctx, exe, getPip, "--no-warn-script-location"); err != nil {
		return fmt.Errorf("%w: get-pip: %v", ErrBootstrapFailed, err)
	}
	if err := p.installVirtualenv(ctx, exe); err != nil {
		return err
	}
	_ = os.Remove(getPip)
	return nil
}

// installVirtualenv installs the environment-isolation tool into the
// runtime via its now-available pip.
func (p *Provisioner) installVirtualenv(ctx context.Context, exe string) error {
	err := p.runPython(ctx, exe, "-m", "pip", "install", "--proxy", "", "virtualenv")
	if err != nil {
		return fmt.Errorf("%w: install virtualenv: %v", ErrBootstrapFailed, err)
	}
	return nil
}

// hasPip reports whether the interpreter at exe can import pip.
func hasPip(ctx context.Context, exe string) bool {
	cmd := exec.CommandContext(ctx, exe, "-m", "pip", "--version") // #nosec G204 -- exe comes from our own install tree
	cmd.Env = childenv.StripProxy(childenv.Base())
	return cmd.Run() == nil
}

// runPython executes the interpreter with proxy-stripped environment,
// streaming interleaved output to the provisioner's sink.
func (p *Provisioner) runPython(ctx context.Context, exe string, args ...string) error {
	cmd := exec.CommandContext(ctx, exe, args...) // #nosec G204 -- exe comes from our own install tree
	cmd.Env = childenv.StripProxy(childenv.Base())
	out := p.out
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out
	p.logger.Debug("bootstrap exec", "cmd", exe, "args", strings.Join(args, " "))
	return cmd.Run()
}
