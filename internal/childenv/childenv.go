// Package childenv builds environment slices for spawned interpreter and
// package-manager processes.
package childenv

import (
	"os"
	"strings"
)

// proxyVars are stripped from every package-manager invocation. The Python
// ecosystem's proxy auto-detection keys off these and routinely turns a
// half-configured corporate proxy into an inexplicable install failure.
var proxyVars = []string{
	"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY",
}

// Base returns a copy of the current process environment.
func Base() []string {
	return append([]string(nil), os.Environ()...)
}

// StripProxy removes proxy variables (both cases) from env.
func StripProxy(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		k, _, ok := strings.Cut(kv, "=")
		if ok && isProxyVar(k) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func isProxyVar(k string) bool {
	uk := strings.ToUpper(k)
	for _, p := range proxyVars {
		if uk == p {
			return true
		}
	}
	return false
}

// Set replaces or appends KEY=value in env.
func Set(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// Lookup returns the value of key in env.
func Lookup(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

// PrependPath puts dir at the front of the PATH entry so the environment's
// own executables shadow any system-wide ones.
func PrependPath(env []string, dir string) []string {
	cur, ok := Lookup(env, "PATH")
	if !ok || cur == "" {
		return Set(env, "PATH", dir)
	}
	return Set(env, "PATH", dir+string(os.PathListSeparator)+cur)
}
