// Package git probes repository identity for template variables.
package git

import (
	"os/exec"
	"strings"
)

// Describe returns the current branch and short commit of the
// repository containing dir. Both come back empty when dir is not
// inside a work tree or git is missing from PATH; the {BRANCH} and
// {COMMIT} variables then render as empty strings instead of failing
// the run.
func Describe(dir string) (branch, commit string) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", ""
	}
	branch = output(dir, "rev-parse", "--abbrev-ref", "HEAD")
	commit = output(dir, "rev-parse", "--short", "HEAD")
	return branch, commit
}

// output runs one git command in dir and returns its trimmed stdout,
// empty on any error.
func output(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
