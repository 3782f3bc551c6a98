package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	want := map[string]bool{
		"apply":     false,
		"analyze":   false,
		"normalize": false,
		"worktree":  false,
		"watch":     false,
		"version":   false,
	}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	if root.PersistentFlags().Lookup("repo") == nil {
		t.Error("--repo flag not registered")
	}
}

func TestReadPatchFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.patch")
	if err := os.WriteFile(path, []byte("patch body\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := readPatch(path)
	if err != nil {
		t.Fatalf("readPatch failed: %v", err)
	}
	if got != "patch body\n" {
		t.Errorf("readPatch = %q", got)
	}
}

func TestReadPatchMissingFile(t *testing.T) {
	if _, err := readPatch(filepath.Join(t.TempDir(), "absent.patch")); err == nil {
		t.Error("readPatch should fail for a missing file")
	}
}
