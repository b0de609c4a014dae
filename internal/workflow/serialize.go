// serialize.go renders a Document back to directive text.
package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize renders the document as directive text. Parsing the result
// yields an equivalent document: same configuration, same steps in the
// same order, unknown directives preserved. Multi-line values fold into
// continuation lines.
func (d *Document) Serialize() string {
	var b strings.Builder

	writeIf(&b, "ADAPTER", d.Adapter)
	writeIf(&b, "MODEL", d.Model)
	writeIf(&b, "MODE", string(d.Mode))
	if d.MaxCycles > 0 {
		writeDirective(&b, "MAX-CYCLES", strconv.Itoa(d.MaxCycles))
	}
	writeIf(&b, "CWD", d.WorkingDir)
	for _, dir := range d.AddDirs {
		writeDirective(&b, "ADD-DIR", dir)
	}
	if d.ContextLimitPercent > 0 {
		writeDirective(&b, "CONTEXT-LIMIT", strconv.Itoa(d.ContextLimitPercent))
	}
	writeIf(&b, "ON-CONTEXT-LIMIT", string(d.OnContextLimit))
	writeIf(&b, "CHECKPOINT-EVERY", string(d.CheckpointEvery))
	for _, pat := range d.CompactPreserve {
		writeDirective(&b, "COMPACT-PRESERVE", pat)
	}

	for _, pat := range d.Restrictions.AllowFiles {
		writeDirective(&b, "ALLOW-FILES", pat)
	}
	for _, pat := range d.Restrictions.DenyFiles {
		writeDirective(&b, "DENY-FILES", pat)
	}
	for _, pat := range d.Restrictions.AllowDirs {
		writeDirective(&b, "ALLOW-DIR", pat)
	}
	for _, pat := range d.Restrictions.DenyDirs {
		writeDirective(&b, "DENY-DIR", pat)
	}

	for _, ref := range d.Prologues {
		writeDirective(&b, "PROLOGUE", refValue(ref))
	}
	for _, ref := range d.Epilogues {
		writeDirective(&b, "EPILOGUE", refValue(ref))
	}
	for _, ref := range d.Headers {
		writeDirective(&b, "HEADER", refValue(ref))
	}
	for _, ref := range d.Footers {
		writeDirective(&b, "FOOTER", refValue(ref))
	}

	writeIf(&b, "OUTPUT-FORMAT", string(d.OutputFormat))
	writeIf(&b, "OUTPUT-FILE", d.OutputFile)

	for _, pat := range d.ContextPatterns {
		writeDirective(&b, "CONTEXT", pat)
	}
	for _, u := range d.Unknown {
		writeDirective(&b, u.Keyword, u.Value)
	}

	// Steps in document order. ALLOW-SHELL is stateful, so emit a toggle
	// whenever the next RUN's shell flag differs from the current state.
	shell := false
	for _, step := range d.Steps {
		switch s := step.(type) {
		case PromptStep:
			writeDirective(&b, "PROMPT", s.Text)
		case RunStep:
			if s.Spec.Shell != shell {
				writeDirective(&b, "ALLOW-SHELL", strconv.FormatBool(s.Spec.Shell))
				shell = s.Spec.Shell
			}
			writeRunModifiers(&b, s.Spec)
			writeDirective(&b, "RUN", s.Spec.Command)
		case CheckpointStep:
			writeDirective(&b, "CHECKPOINT", s.Name)
		case CompactStep:
			writeDirective(&b, "COMPACT", strings.Join(s.Preserve, ", "))
		case PauseStep:
			writeDirective(&b, "PAUSE", s.Message)
		case NewConversationStep:
			writeDirective(&b, "NEW-CONVERSATION", "")
		}
	}
	if d.AllowShell != shell {
		writeDirective(&b, "ALLOW-SHELL", strconv.FormatBool(d.AllowShell))
	}

	return b.String()
}

func writeRunModifiers(b *strings.Builder, spec RunSpec) {
	if spec.OnError != "" {
		value := string(spec.OnError)
		if spec.OnError == OnErrorRetry {
			value = fmt.Sprintf("retry:%d", spec.Retries)
		}
		writeDirective(b, "RUN-ON-ERROR", value)
	}
	if spec.Output != "" {
		writeDirective(b, "RUN-OUTPUT", string(spec.Output))
	}
	if spec.OutputLimit > 0 {
		writeDirective(b, "RUN-OUTPUT-LIMIT", strconv.Itoa(spec.OutputLimit))
	}
	if spec.Timeout > 0 {
		writeDirective(b, "RUN-TIMEOUT", spec.Timeout.String())
	}
	if spec.Dir != "" {
		writeDirective(b, "RUN-CWD", spec.Dir)
	}
	for _, env := range spec.Env {
		writeDirective(b, "RUN-ENV", env)
	}
}

func refValue(ref ContentRef) string {
	if ref.IsPath() {
		return "@" + ref.Path
	}
	return ref.Inline
}

func writeIf(b *strings.Builder, keyword, value string) {
	if value != "" {
		writeDirective(b, keyword, value)
	}
}

// writeDirective emits one directive line, folding additional value lines
// into indented continuations.
func writeDirective(b *strings.Builder, keyword, value string) {
	if value == "" {
		b.WriteString(keyword)
		b.WriteString("\n")
		return
	}
	lines := strings.Split(value, "\n")
	b.WriteString(keyword)
	b.WriteString(" ")
	b.WriteString(lines[0])
	b.WriteString("\n")
	for _, line := range lines[1:] {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}
