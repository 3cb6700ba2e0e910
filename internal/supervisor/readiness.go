package supervisor

import (
	"fmt"
	"regexp"
	"strings"
)

// readyPattern matches the negotiated port appearing as a bound address in
// the child's output. A documented heuristic: the dev server offers no
// richer readiness signal than its own log text, and we assume no control
// over that format.
func readyPattern(port int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]):%d`, port))
}

// portBusyMarkers are the strings dev servers across platforms print when
// the port is already bound. Seeing one reclassifies a non-zero exit as
// "likely already running" rather than a failure.
var portBusyMarkers = []string{
	"address already in use",
	"port is already in use",
	"only one usage of each socket address",
	"errno 98",
	"errno 10048",
	"eaddrinuse",
}

func looksPortBusy(line string) bool {
	l := strings.ToLower(line)
	for _, m := range portBusyMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}
