package childenv

import (
	"os"
	"strings"
	"testing"
)

func TestStripProxyBothCases(t *testing.T) {
	env := []string{
		"HTTP_PROXY=http://proxy:3128",
		"https_proxy=http://proxy:3128",
		"ALL_PROXY=socks5://proxy:1080",
		"no_proxy=localhost",
		"HOME=/home/u",
		"NOT_A_PROXY=1",
	}
	got := StripProxy(env)
	// Matching is on the exact variable name: NOT_A_PROXY is not a proxy
	// setting and must survive.
	want := []string{"HOME=/home/u", "NOT_A_PROXY=1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStripProxyDoesNotMutateInput(t *testing.T) {
	env := []string{"HTTP_PROXY=x", "HOME=/home/u"}
	_ = StripProxy(env)
	if env[0] != "HTTP_PROXY=x" || env[1] != "HOME=/home/u" {
		t.Fatalf("input mutated: %v", env)
	}
}

func TestSetReplacesAndAppends(t *testing.T) {
	env := []string{"A=1", "B=2"}
	env = Set(env, "A", "3")
	if v, _ := Lookup(env, "A"); v != "3" {
		t.Fatalf("A = %q, want 3", v)
	}
	env = Set(env, "C", "4")
	if v, ok := Lookup(env, "C"); !ok || v != "4" {
		t.Fatalf("C = %q (%v), want 4", v, ok)
	}
	if len(env) != 3 {
		t.Fatalf("env = %v", env)
	}
}

func TestLookupMissing(t *testing.T) {
	if _, ok := Lookup([]string{"A=1"}, "B"); ok {
		t.Fatal("found a key that is not there")
	}
}

func TestPrependPath(t *testing.T) {
	sep := string(os.PathListSeparator)
	env := []string{"PATH=/usr/bin" + sep + "/bin"}
	env = PrependPath(env, "/env/bin")
	v, _ := Lookup(env, "PATH")
	if !strings.HasPrefix(v, "/env/bin"+sep) {
		t.Fatalf("PATH = %q", v)
	}
	if !strings.HasSuffix(v, "/bin") {
		t.Fatalf("original PATH tail lost: %q", v)
	}
}

func TestPrependPathWithoutExisting(t *testing.T) {
	env := PrependPath([]string{"HOME=/home/u"}, "/env/bin")
	if v, _ := Lookup(env, "PATH"); v != "/env/bin" {
		t.Fatalf("PATH = %q", v)
	}
}
