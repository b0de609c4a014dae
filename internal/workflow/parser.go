// parser.go parses workflow directive text into Document structs.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a directive value the parser could not accept, with
// the 1-based line number it came from.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func parseErrorf(line int, format string, args ...any) error {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// ParseFile reads and parses a workflow file. Relative paths inside the
// document resolve against the file's directory.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	doc, err := Parse(string(data), filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Source = path
	return doc, nil
}

// Parse parses workflow text into a Document. basePath is the directory
// relative CWD, ADD-DIR, RUN-CWD and @path references resolve against; an
// empty basePath leaves relative paths alone.
//
// The format is line oriented: `DIRECTIVE value` lines, `#` comment lines,
// and blank lines between them. A line starting with whitespace continues
// the previous directive's value. Lines that do not start with a
// keyword-shaped token are prompt text; a document of nothing but prompt
// text yields a single Prompt step.
func Parse(text, basePath string) (*Document, error) {
	doc := &Document{Source: inlineSource, BasePath: basePath}
	p := &parser{doc: doc, basePath: basePath}
	for _, raw := range lex(text) {
		if err := p.apply(raw); err != nil {
			return nil, err
		}
	}
	if len(doc.Steps) == 0 {
		return nil, fmt.Errorf("workflow has no steps: add PROMPT, RUN, or prompt text")
	}
	return doc, nil
}

// rawDirective is one lexed directive before interpretation. Bare prompt
// text is carried with an empty keyword.
type rawDirective struct {
	keyword string
	value   string
	line    int
}

// lex splits workflow text into raw directives, resolving comments, blank
// lines, continuation lines, and bare prompt blocks. Indented lines
// continue the previous directive's value; blank lines between them are
// kept so multi-line values keep their paragraph breaks. Bare text
// accumulates across blank lines into a single block.
func lex(text string) []rawDirective {
	var out []rawDirective
	var cur *rawDirective
	var bare []string
	bareLine := 0
	blanks := 0

	flushCur := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
		blanks = 0
	}
	flushBare := func() {
		for len(bare) > 0 && bare[len(bare)-1] == "" {
			bare = bare[:len(bare)-1]
		}
		if len(bare) > 0 {
			out = append(out, rawDirective{value: strings.Join(bare, "\n"), line: bareLine})
			bare = nil
		}
	}

	for i, line := range strings.Split(text, "\n") {
		n := i + 1
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if cur != nil {
				blanks++
			}
			if len(bare) > 0 {
				bare = append(bare, "")
			}
			continue
		}

		indented := line[0] == ' ' || line[0] == '\t'

		// Comments are only recognized at column 0 so indented # lines can
		// carry markdown headings inside multi-line values.
		if !indented && strings.HasPrefix(trimmed, "#") {
			continue
		}

		if indented && cur != nil {
			for ; blanks > 0; blanks-- {
				cur.value += "\n"
			}
			cur.value += "\n" + trimmed
			continue
		}

		token := trimmed
		if j := strings.IndexAny(trimmed, " \t"); j >= 0 {
			token = trimmed[:j]
		}
		if !indented && isKeywordShaped(token) {
			flushCur()
			flushBare()
			cur = &rawDirective{
				keyword: token,
				value:   strings.TrimSpace(strings.TrimPrefix(trimmed, token)),
				line:    n,
			}
			continue
		}

		flushCur()
		if len(bare) == 0 {
			bareLine = n
		}
		bare = append(bare, trimmed)
	}
	flushCur()
	flushBare()
	return out
}

// parser applies raw directives to the document under construction.
// RUN-* modifier directives stage into pending and attach to the next RUN.
type parser struct {
	doc      *Document
	basePath string
	pending  pendingRun
}

type pendingRun struct {
	onError     ErrorPolicy
	retries     int
	output      RunOutput
	outputLimit int
	timeout     time.Duration
	dir         string
	env         []string
}

func (p *parser) apply(raw rawDirective) error {
	if raw.keyword == "" {
		p.addPrompt(raw.value)
		return nil
	}

	switch KindOf(raw.keyword) {
	case DirUnknown:
		p.doc.Unknown = append(p.doc.Unknown, UnknownDirective{
			Keyword: raw.keyword, Value: raw.value, Line: raw.line,
		})

	case DirAdapter:
		p.doc.Adapter = raw.value
	case DirModel:
		p.doc.Model = raw.value
	case DirMode:
		switch SessionMode(raw.value) {
		case ModeAccumulate, ModeCompact, ModeFresh:
			p.doc.Mode = SessionMode(raw.value)
		default:
			return parseErrorf(raw.line, "MODE must be accumulate, compact, or fresh (got %q)", raw.value)
		}
	case DirMaxCycles:
		n, err := strconv.Atoi(raw.value)
		if err != nil || n < 1 {
			return parseErrorf(raw.line, "MAX-CYCLES wants a positive integer (got %q)", raw.value)
		}
		p.doc.MaxCycles = n
	case DirCwd:
		p.doc.WorkingDir = p.resolve(raw.value)
	case DirAddDir:
		p.doc.AddDirs = append(p.doc.AddDirs, p.resolve(raw.value))

	case DirContext:
		if raw.value == "" {
			return parseErrorf(raw.line, "CONTEXT wants a glob pattern")
		}
		p.doc.ContextPatterns = append(p.doc.ContextPatterns, raw.value)
	case DirContextLimit:
		n, err := strconv.Atoi(strings.TrimSuffix(raw.value, "%"))
		if err != nil || n < 1 || n > 100 {
			return parseErrorf(raw.line, "CONTEXT-LIMIT wants a percentage 1-100 (got %q)", raw.value)
		}
		p.doc.ContextLimitPercent = n
	case DirOnContextLimit:
		switch OverflowAction(raw.value) {
		case OverflowCompact, OverflowStop:
			p.doc.OnContextLimit = OverflowAction(raw.value)
		default:
			return parseErrorf(raw.line, "ON-CONTEXT-LIMIT must be compact or stop (got %q)", raw.value)
		}
	case DirCompactPreserve:
		p.doc.CompactPreserve = append(p.doc.CompactPreserve, splitList(raw.value)...)
	case DirCheckpointEvery:
		switch CheckpointPolicy(raw.value) {
		case CheckpointNone, CheckpointCycle, CheckpointPrompt:
			p.doc.CheckpointEvery = CheckpointPolicy(raw.value)
		default:
			return parseErrorf(raw.line, "CHECKPOINT-EVERY must be none, cycle, or prompt (got %q)", raw.value)
		}

	case DirAllowFiles:
		p.doc.Restrictions.AllowFiles = append(p.doc.Restrictions.AllowFiles, splitList(raw.value)...)
	case DirDenyFiles:
		p.doc.Restrictions.DenyFiles = append(p.doc.Restrictions.DenyFiles, splitList(raw.value)...)
	case DirAllowDir:
		p.doc.Restrictions.AllowDirs = append(p.doc.Restrictions.AllowDirs, splitList(raw.value)...)
	case DirDenyDir:
		p.doc.Restrictions.DenyDirs = append(p.doc.Restrictions.DenyDirs, splitList(raw.value)...)

	case DirPrompt:
		if raw.value == "" {
			return parseErrorf(raw.line, "PROMPT wants text")
		}
		p.addPrompt(raw.value)
	case DirRun:
		if raw.value == "" {
			return parseErrorf(raw.line, "RUN wants a command")
		}
		spec := RunSpec{
			Command:     raw.value,
			OnError:     p.pending.onError,
			Retries:     p.pending.retries,
			Output:      p.pending.output,
			OutputLimit: p.pending.outputLimit,
			Timeout:     p.pending.timeout,
			Dir:         p.pending.dir,
			Env:         p.pending.env,
			Shell:       p.doc.AllowShell,
		}
		p.doc.Steps = append(p.doc.Steps, RunStep{Spec: spec})
		p.pending = pendingRun{}
	case DirCheckpoint:
		p.doc.Steps = append(p.doc.Steps, CheckpointStep{Name: raw.value})
	case DirCompact:
		p.doc.Steps = append(p.doc.Steps, CompactStep{Preserve: splitList(raw.value)})
	case DirPause:
		p.doc.Steps = append(p.doc.Steps, PauseStep{Message: raw.value})
	case DirNewConversation:
		p.doc.Steps = append(p.doc.Steps, NewConversationStep{})

	case DirRunOnError:
		if err := p.parseOnError(raw); err != nil {
			return err
		}
	case DirRunOutput:
		switch RunOutput(raw.value) {
		case OutputSession, OutputDiscard:
			p.pending.output = RunOutput(raw.value)
		default:
			return parseErrorf(raw.line, "RUN-OUTPUT must be session or discard (got %q)", raw.value)
		}
	case DirRunOutputLimit:
		n, err := strconv.Atoi(raw.value)
		if err != nil || n < 1 {
			return parseErrorf(raw.line, "RUN-OUTPUT-LIMIT wants a positive character count (got %q)", raw.value)
		}
		p.pending.outputLimit = n
	case DirRunTimeout:
		d, err := parseTimeout(raw.value)
		if err != nil {
			return parseErrorf(raw.line, "RUN-TIMEOUT wants seconds or a duration like 90s (got %q)", raw.value)
		}
		p.pending.timeout = d
	case DirRunCwd:
		p.pending.dir = p.resolve(raw.value)
	case DirRunEnv:
		if !strings.Contains(raw.value, "=") {
			return parseErrorf(raw.line, "RUN-ENV wants KEY=VALUE (got %q)", raw.value)
		}
		p.pending.env = append(p.pending.env, raw.value)
	case DirAllowShell:
		b, err := strconv.ParseBool(raw.value)
		if err != nil {
			return parseErrorf(raw.line, "ALLOW-SHELL wants true or false (got %q)", raw.value)
		}
		p.doc.AllowShell = b

	case DirPrologue:
		p.doc.Prologues = append(p.doc.Prologues, p.contentRef(raw.value))
	case DirEpilogue:
		p.doc.Epilogues = append(p.doc.Epilogues, p.contentRef(raw.value))
	case DirHeader:
		p.doc.Headers = append(p.doc.Headers, p.contentRef(raw.value))
	case DirFooter:
		p.doc.Footers = append(p.doc.Footers, p.contentRef(raw.value))

	case DirOutputFormat:
		switch OutputFormat(raw.value) {
		case FormatText, FormatJSON, FormatMarkdown:
			p.doc.OutputFormat = OutputFormat(raw.value)
		default:
			return parseErrorf(raw.line, "OUTPUT-FORMAT must be text, json, or markdown (got %q)", raw.value)
		}
	case DirOutputFile:
		p.doc.OutputFile = raw.value
	}
	return nil
}

func (p *parser) addPrompt(text string) {
	p.doc.Steps = append(p.doc.Steps, PromptStep{Text: text})
	p.doc.Prompts = append(p.doc.Prompts, text)
}

// parseOnError handles RUN-ON-ERROR values: stop, continue, retry, retry:N.
func (p *parser) parseOnError(raw rawDirective) error {
	value := strings.ToLower(strings.TrimSpace(raw.value))
	switch {
	case value == string(OnErrorStop):
		p.pending.onError = OnErrorStop
	case value == string(OnErrorContinue):
		p.pending.onError = OnErrorContinue
	case value == string(OnErrorRetry):
		p.pending.onError = OnErrorRetry
		p.pending.retries = 1
	case strings.HasPrefix(value, "retry:"):
		n, err := strconv.Atoi(strings.TrimPrefix(value, "retry:"))
		if err != nil || n < 1 {
			return parseErrorf(raw.line, "RUN-ON-ERROR retry wants a positive count (got %q)", raw.value)
		}
		p.pending.onError = OnErrorRetry
		p.pending.retries = n
	default:
		return parseErrorf(raw.line, "RUN-ON-ERROR must be stop, continue, or retry:N (got %q)", raw.value)
	}
	return nil
}

func (p *parser) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.basePath == "" {
		return path
	}
	return filepath.Join(p.basePath, path)
}

// contentRef interprets a directive value as inline text or an @path
// reference. Paths join the base directory now but are read only when the
// content is rendered.
func (p *parser) contentRef(value string) ContentRef {
	if strings.HasPrefix(value, "@") {
		return ContentRef{Path: p.resolve(strings.TrimPrefix(value, "@"))}
	}
	return ContentRef{Inline: value}
}

// splitList splits a comma-separated directive value, trimming whitespace
// and dropping empties.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseTimeout accepts bare seconds ("90") or a Go duration ("2m30s").
func parseTimeout(value string) (time.Duration, error) {
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 1 {
			return 0, fmt.Errorf("timeout must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive")
	}
	return d, nil
}
