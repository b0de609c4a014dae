// Package testutil provides test helper utilities for sdqctl tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// WriteWorkflow writes workflow text into dir and returns the file path.
func WriteWorkflow(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// GoProject returns file contents for a minimal Go project, handy as
// context-gathering material.
func GoProject() map[string]string {
	return map[string]string{
		"go.mod":  "module example.com/test\n\ngo 1.23\n",
		"main.go": "package main\n\nfunc main() {}\n",
	}
}

// ReviewProject returns a small mixed tree used by context and executor
// tests: source, docs, and a file that restriction tests like to deny.
func ReviewProject() map[string]string {
	return map[string]string{
		"src/server.go":  "package server\n\nfunc Serve() {}\n",
		"src/client.go":  "package server\n\nfunc Dial() {}\n",
		"docs/notes.md":  "# Notes\n\nRemember the retry path.\n",
		"secrets.env":    "TOKEN=hunter2\n",
		"vendor/lib.go":  "package lib\n",
	}
}
