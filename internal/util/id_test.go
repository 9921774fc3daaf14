package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID(NodePrefix)
	if !strings.HasPrefix(id, "n-") {
		t.Errorf("expected n- prefix, got %q", id)
	}
	if len(id) != len(NodePrefix)+8 {
		t.Errorf("expected %d chars, got %d (%q)", len(NodePrefix)+8, len(id), id)
	}

	// Two mints never collide in practice.
	if NewID(EdgePrefix) == NewID(EdgePrefix) {
		t.Error("consecutive ids collided")
	}
}

func TestValidID(t *testing.T) {
	valid := []string{
		NewID(NodePrefix),
		NewID(EdgePrefix),
		NewID(WorkingPrefix),
		"e-3f2a91cc",
		"wm-0123abcd",
	}
	for _, id := range valid {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}

	invalid := []string{
		"",
		"e-",
		"no-prefix-at-all-here",
		"E-3F2A91CC",
		"e-3f2a91cc; DROP TABLE edges",
		"edge:123",
	}
	for _, id := range invalid {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("e-3f2a91cc4455", 0); got != "e-3f2a91cc4" {
		t.Errorf("ShortID default = %q", got)
	}
	if got := ShortID("e-3f", 10); got != "e-3f" {
		t.Errorf("ShortID no-truncate = %q", got)
	}
}
