package pyruntime

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pylaunch/pylaunch/internal/registry"
)

// probeTimeout bounds each candidate's --version invocation. A hung or
// broken interpreter is treated as "not a runtime", never as an error.
const probeTimeout = 3 * time.Second

var candidateNames = []string{
	"python3", "python",
	"python3.13", "python3.12", "python3.11", "python3.10", "python3.9", "python3.8",
}

// ScanSystem probes PATH for usable interpreters and returns them as
// system-origin runtimes, deduplicated by resolved executable path.
func ScanSystem(ctx context.Context, logger *slog.Logger) []registry.ManagedRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool)
	var out []registry.ManagedRuntime
	for _, name := range candidateNames {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			resolved = path
		}
		if seen[resolved] {
			continue
		}
		version, ok := probeVersion(ctx, path)
		if !ok {
			logger.Debug("candidate did not answer version probe", "path", path)
			continue
		}
		seen[resolved] = true
		out = append(out, registry.ManagedRuntime{
			Version:     version,
			Path:        path,
			InstalledAt: time.Now(),
			Origin:      registry.OriginSystem,
		})
	}
	return out
}

// probeVersion runs "<exe> --version" and parses "Python X.Y.Z". Timeouts
// and garbage output both mean "not this one".
func probeVersion(ctx context.Context, exe string) (string, bool) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(pctx, exe, "--version") // #nosec G204 -- exe resolved via LookPath
	b, err := cmd.CombinedOutput()
	if err != nil {
		return "", false
	}
	return parseVersionOutput(string(b))
}

func parseVersionOutput(s string) (string, bool) {
	s = strings.TrimSpace(s)
	const prefix = "Python "
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	v := strings.Fields(s[len(prefix):])
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}
