package contextmgr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bewest/sdqctl-sub002/internal/testutil"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

func TestAddPattern_GathersMatchingFiles(t *testing.T) {
	dir := testutil.TempProject(t, testutil.ReviewProject())

	m := New(dir, workflow.Restrictions{}, 0)
	added, err := m.AddPattern("src/*.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	content := m.Content()
	if !strings.Contains(content, "func Serve()") || !strings.Contains(content, "func Dial()") {
		t.Errorf("content missing source files:\n%s", content)
	}
	if !strings.Contains(content, "--- FILE: ") {
		t.Errorf("content missing file banners:\n%s", content)
	}
}

func TestAddPattern_NoMatchWarnsButSucceeds(t *testing.T) {
	dir := testutil.TempProject(t, map[string]string{})

	var warnings []string
	m := New(dir, workflow.Restrictions{}, 0)
	m.Warn = func(msg string) { warnings = append(warnings, msg) }

	added, err := m.AddPattern("nothing/*.txt")
	if err != nil {
		t.Fatalf("unmatched pattern should not error: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "nothing/*.txt") {
		t.Errorf("warnings = %v, want one naming the pattern", warnings)
	}
}

func TestAddPattern_RestrictionsFilterSilently(t *testing.T) {
	dir := testutil.TempProject(t, testutil.ReviewProject())

	var warnings []string
	r := workflow.Restrictions{DenyFiles: []string{"*.env"}, DenyDirs: []string{"vendor"}}
	m := New(dir, r, 0)
	m.Warn = func(msg string) { warnings = append(warnings, msg) }

	for _, pattern := range []string{"src/*.go", "*.env", "vendor/*.go"} {
		if _, err := m.AddPattern(pattern); err != nil {
			t.Fatalf("AddPattern(%q): %v", pattern, err)
		}
	}

	if m.FileCount() != 2 {
		t.Fatalf("FileCount = %d, want only the 2 src files", m.FileCount())
	}
	for _, f := range m.Files() {
		if strings.HasSuffix(f.Path, "secrets.env") {
			t.Error("denied file admitted into context")
		}
		if strings.Contains(f.Path, "vendor"+string(os.PathSeparator)) {
			t.Error("file under denied dir admitted into context")
		}
	}
	if len(warnings) != 0 {
		t.Errorf("restriction filtering should be silent, got %v", warnings)
	}
}

func TestReload_SeesOnDiskChanges(t *testing.T) {
	dir := testutil.TempProject(t, map[string]string{"state.md": "first draft"})

	m := New(dir, workflow.Restrictions{}, 0)
	if _, err := m.AddPattern("state.md"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(m.Content(), "first draft") {
		t.Fatalf("initial content not loaded")
	}

	path := filepath.Join(dir, "state.md")
	if err := os.WriteFile(path, []byte("second draft"), 0644); err != nil {
		t.Fatalf("rewriting fixture: %v", err)
	}

	// Without a reload the old snapshot stays.
	if strings.Contains(m.Content(), "second draft") {
		t.Fatal("content changed without Reload")
	}

	if err := m.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !strings.Contains(m.Content(), "second draft") {
		t.Errorf("reload did not pick up on-disk edit:\n%s", m.Content())
	}
	if strings.Contains(m.Content(), "first draft") {
		t.Errorf("reload kept stale content:\n%s", m.Content())
	}
}

func TestIsNearLimit(t *testing.T) {
	dir := testutil.TempProject(t, map[string]string{
		"big.txt": strings.Repeat("x", 4000), // ~1000 tokens
	})

	m := New(dir, workflow.Restrictions{}, 2000)
	if _, err := m.AddPattern("big.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.TotalTokens() != 1000 {
		t.Fatalf("TotalTokens = %d, want 1000", m.TotalTokens())
	}
	if m.IsNearLimit(0, 80) {
		t.Error("1000/2000 should not be near an 80% limit")
	}
	if !m.IsNearLimit(0, 50) {
		t.Error("1000/2000 should be near a 50% limit")
	}
	if !m.IsNearLimit(700, 80) {
		t.Error("1700/2000 should be near an 80% limit")
	}

	unlimited := New(dir, workflow.Restrictions{}, 0)
	if unlimited.IsNearLimit(1<<20, 80) {
		t.Error("zero budget disables limit checks")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("EstimateTokens = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens empty = %d, want 0", got)
	}
}
