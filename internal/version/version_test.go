package version

import (
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	t.Parallel()
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	info := Resolve()
	if info.Version == "" {
		t.Fatal("version must not be empty")
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Fatalf("unexpected go version %q", info.GoVersion)
	}
	if s := String(); !strings.HasPrefix(s, info.Version) {
		t.Fatalf("String() = %q, want prefix %q", s, info.Version)
	}
}
