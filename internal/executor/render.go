// render.go assembles the text that actually reaches the agent: template
// variables, prologue/epilogue wrapping, context file blocks, and pending
// command output.
package executor

import (
	"strings"

	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// Vars builds the substitution set for the current position. Every
// rendered surface (prompts, prologues, report headers, output paths)
// sees the same values.
func (e *Executor) Vars() workflow.Vars {
	doc := e.Session.Workflow
	return workflow.Vars{
		Workflow:     doc.Source,
		WorkflowName: doc.Name(),
		Iteration:    e.Iteration,
		Iterations:   e.Iterations,
		Cycle:        e.Session.CycleNumber,
		Cycles:       e.Session.MaxCycles,
		Branch:       e.Branch,
		Commit:       e.Commit,
		Cwd:          e.workDir(),
		StopFile:     e.Session.StopFile(config.StateDir(e.ProjectRoot)),
		Target:       e.UnitID,
	}
}

// renderPrompt composes the full message for one prompt step: context
// files (first prompt of each conversation), command output captured
// since the last prompt, prologues, the body, and epilogues.
func (e *Executor) renderPrompt(body string) string {
	vars := e.Vars()
	var sections []string

	if !e.contextSent && e.Context != nil && e.Context.FileCount() > 0 {
		sections = append(sections, "## Context Files\n\n"+e.Context.Content())
		e.contextSent = true
	}

	if len(e.pendingOutput) > 0 {
		sections = append(sections, "## Command Output\n\n"+strings.Join(e.pendingOutput, "\n\n"))
		e.pendingOutput = nil
	}

	for _, ref := range e.Session.Workflow.Prologues {
		if text := e.renderRef(ref, vars); text != "" {
			sections = append(sections, text)
		}
	}

	sections = append(sections, vars.Expand(body))

	for _, ref := range e.Session.Workflow.Epilogues {
		if text := e.renderRef(ref, vars); text != "" {
			sections = append(sections, text)
		}
	}

	return strings.Join(sections, "\n\n")
}

// renderRef materializes a content ref. Path refs are read at render
// time so edits between cycles are picked up; a vanished file warns and
// renders as the literal @path reference so the agent sees what was
// meant to be there.
func (e *Executor) renderRef(ref workflow.ContentRef, vars workflow.Vars) string {
	text, err := ref.Resolve()
	if err != nil {
		e.warnf("reading %s: %v", ref.Path, err)
		return "@" + ref.Path
	}
	return vars.Expand(text)
}

// RenderRefs materializes a ref list with the current vars. The
// orchestrator uses this for report headers and footers.
func (e *Executor) RenderRefs(refs []workflow.ContentRef) []string {
	vars := e.Vars()
	var out []string
	for _, ref := range refs {
		if text := e.renderRef(ref, vars); text != "" {
			out = append(out, text)
		}
	}
	return out
}
