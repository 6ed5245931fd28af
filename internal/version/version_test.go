package version

import (
	"strings"
	"testing"
)

func TestStringIncludesInjectedFields(t *testing.T) {
	prev := Version
	Version = "1.2.3"
	defer func() { Version = prev }()

	if got := Get().Version; got != "1.2.3" {
		t.Fatalf("Get().Version = %q", got)
	}
	if s := String(); !strings.Contains(s, "1.2.3") || !strings.Contains(s, Commit) {
		t.Fatalf("unexpected version string %q", s)
	}
}
