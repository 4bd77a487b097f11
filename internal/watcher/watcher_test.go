package watcher

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkDirs_SkipsGitAndSubagentsDirs(t *testing.T) {
	root := t.TempDir()

	mkdirAll(t, filepath.Join(root, "project-a", "nested"))
	mkdirAll(t, filepath.Join(root, "project-a", "subagents"))
	mkdirAll(t, filepath.Join(root, ".git"))

	got := walkDirs(root)
	relSet := make(map[string]bool, len(got))
	for _, p := range got {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatalf("rel path: %v", err)
		}
		relSet[filepath.ToSlash(rel)] = true
	}

	if !relSet["."] {
		t.Fatalf("expected root in watched dirs")
	}
	if !relSet["project-a"] || !relSet["project-a/nested"] {
		t.Fatalf("expected project dirs to be watched, got: %#v", relSet)
	}
	if relSet["project-a/subagents"] {
		t.Fatalf("expected subagents dir to be skipped, got: %#v", relSet)
	}
	if relSet[".git"] {
		t.Fatalf("expected .git to be skipped, got: %#v", relSet)
	}
}

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
