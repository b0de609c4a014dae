// template.go substitutes {VAR} tokens into prompt and output text.
package workflow

import (
	"strconv"
	"strings"
	"time"
)

// Vars carries the values substituted into prompts, prologues, epilogues,
// headers, footers and output paths at render time. Tokens the set does
// not define pass through untouched, so braces in prompt text are safe.
type Vars struct {
	Workflow     string // workflow source path as given
	WorkflowName string // base name without extension
	Iteration    int    // 1-based unit index within a batch
	Iterations   int    // total units in the batch
	Cycle        int    // 1-based cycle number
	Cycles       int    // configured MAX-CYCLES
	Branch       string // VCS branch, empty outside a repository
	Commit       string // VCS short commit, empty outside a repository
	Cwd          string
	StopFile     string // sentinel file the agent may create to stop the run
	Target       string // batch target value, empty for single runs
	Now          time.Time
}

// Expand replaces every {VAR} token in s with its value.
func (v Vars) Expand(s string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	now := v.Now
	if now.IsZero() {
		now = time.Now()
	}
	r := strings.NewReplacer(
		"{DATE}", now.Format("2006-01-02"),
		"{TIME}", now.Format("15:04:05"),
		"{DATETIME}", now.Format("2006-01-02 15:04:05"),
		"{WORKFLOW}", v.Workflow,
		"{WORKFLOW_NAME}", v.WorkflowName,
		"{ITERATION}", strconv.Itoa(v.Iteration),
		"{ITERATIONS}", strconv.Itoa(v.Iterations),
		"{CYCLE}", strconv.Itoa(v.Cycle),
		"{CYCLES}", strconv.Itoa(v.Cycles),
		"{BRANCH}", v.Branch,
		"{COMMIT}", v.Commit,
		"{CWD}", v.Cwd,
		"{STOP_FILE}", v.StopFile,
		"{TARGET}", v.Target,
	)
	return r.Replace(s)
}
