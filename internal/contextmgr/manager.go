// manager.go gathers workflow context files and tracks a token estimate.
//
// Package contextmgr resolves CONTEXT glob patterns into ordered content
// blocks and keeps a running token estimate against a configured budget.
// Token counts use the rough chars/4 heuristic; they are advisory, not
// exact, and only ever compared against thresholds.
package contextmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// File is one resolved context file.
type File struct {
	Path      string
	Content   string
	EstTokens int
}

// Manager owns the context file set for a single session. It is not safe
// for concurrent use; each session builds its own.
type Manager struct {
	baseDir      string
	restrictions workflow.Restrictions
	maxTokens    int
	patterns     []string
	files        []File
	index        map[string]int

	// Warn receives non-fatal resolution messages (unmatched globs,
	// unreadable files). Nil means warnings are dropped.
	Warn func(msg string)
}

// New builds a Manager rooted at baseDir. maxTokens is the session token
// budget; zero disables limit checks.
func New(baseDir string, restrictions workflow.Restrictions, maxTokens int) *Manager {
	return &Manager{
		baseDir:      baseDir,
		restrictions: restrictions,
		maxTokens:    maxTokens,
		index:        make(map[string]int),
	}
}

// AddPattern resolves a glob pattern relative to the base directory and
// admits every matching file that passes the restrictions. The pattern is
// remembered so Reload can re-resolve it. A pattern matching nothing is a
// warning, never an error.
func (m *Manager) AddPattern(pattern string) (int, error) {
	m.patterns = append(m.patterns, pattern)
	return m.addPattern(pattern)
}

func (m *Manager) addPattern(pattern string) (int, error) {
	glob := pattern
	if !filepath.IsAbs(glob) && m.baseDir != "" {
		glob = filepath.Join(m.baseDir, glob)
	}
	matches, err := filepath.Glob(glob)
	if err != nil {
		return 0, fmt.Errorf("bad context pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		m.warnf("context pattern %q matched no files", pattern)
		return 0, nil
	}
	sort.Strings(matches)

	added := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if !m.allowed(path) {
			continue // restriction filtering is silent by contract
		}
		if err := m.addFile(path); err != nil {
			m.warnf("skipping context file %s: %v", path, err)
			continue
		}
		added++
	}
	return added, nil
}

// allowed applies restrictions to the path relative to the base directory
// so patterns written in the workflow match what users see.
func (m *Manager) allowed(path string) bool {
	if m.restrictions.Empty() {
		return true
	}
	rel := path
	if m.baseDir != "" {
		if r, err := filepath.Rel(m.baseDir, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	return m.restrictions.IsPathAllowed(rel)
}

func (m *Manager) addFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content := string(data)
	f := File{Path: path, Content: content, EstTokens: EstimateTokens(content)}
	if i, ok := m.index[path]; ok {
		m.files[i] = f
		return nil
	}
	m.index[path] = len(m.files)
	m.files = append(m.files, f)
	return nil
}

// Reload drops every loaded file and re-resolves the recorded patterns
// from disk. Fresh sessions call this between cycles so edits made by
// earlier cycles are visible to later ones.
func (m *Manager) Reload() error {
	m.files = nil
	m.index = make(map[string]int)
	for _, pattern := range m.patterns {
		if _, err := m.addPattern(pattern); err != nil {
			return err
		}
	}
	return nil
}

// Content renders the loaded files as one prompt block, each file under a
// path banner, in the order patterns admitted them.
func (m *Manager) Content() string {
	if len(m.files) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range m.files {
		b.WriteString("--- FILE: ")
		b.WriteString(f.Path)
		b.WriteString(" ---\n")
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Files returns the loaded files in admission order.
func (m *Manager) Files() []File {
	out := make([]File, len(m.files))
	copy(out, m.files)
	return out
}

// FileCount returns how many files are loaded.
func (m *Manager) FileCount() int { return len(m.files) }

// TotalTokens is the estimate across all loaded files.
func (m *Manager) TotalTokens() int {
	total := 0
	for _, f := range m.files {
		total += f.EstTokens
	}
	return total
}

// MaxTokens returns the configured budget, 0 when unlimited.
func (m *Manager) MaxTokens() int { return m.maxTokens }

// IsNearLimit reports whether the estimate, plus extraTokens of
// conversation weight, has crossed thresholdPercent of the budget.
func (m *Manager) IsNearLimit(extraTokens, thresholdPercent int) bool {
	if m.maxTokens <= 0 || thresholdPercent <= 0 {
		return false
	}
	return m.TotalTokens()+extraTokens >= m.maxTokens*thresholdPercent/100
}

func (m *Manager) warnf(format string, args ...any) {
	if m.Warn != nil {
		m.Warn(fmt.Sprintf(format, args...))
	}
}

// EstimateTokens approximates the token weight of text as len/4.
func EstimateTokens(text string) int {
	return len(text) / 4
}
