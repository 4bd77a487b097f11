package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/langmartai/lmassist/internal/config"
)

// withTestDataDir points LM_ASSIST_DATA_DIR at a fresh temp directory and
// ensures its subdirectories exist, mirroring how `lmassist` bootstraps on
// first run.
func withTestDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)
	if err := config.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return dir
}

// captureStdout runs fn with os.Stdout redirected, returning what it wrote.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}
