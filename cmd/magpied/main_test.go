package main

import (
	"path/filepath"
	"testing"

	"magpie/internal/testsupport"
)

func TestBuildSocketPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	got := buildSocketPath(cfg)
	want := filepath.Join(cfg.Paths.StateDir, "magpied.sock")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestBuildSocketPathNilConfig(t *testing.T) {
	got := buildSocketPath(nil)
	want := filepath.Join("", "magpied.sock")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
