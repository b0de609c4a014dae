// directive.go enumerates the directive keywords the parser understands.
package workflow

// DirectiveKind identifies one directive keyword. The set is closed; the
// parser's apply switch covers every kind, and anything outside the table
// is preserved as an UnknownDirective.
type DirectiveKind int

const (
	DirUnknown DirectiveKind = iota
	DirAdapter
	DirModel
	DirMode
	DirMaxCycles
	DirCwd
	DirAddDir
	DirContext
	DirContextLimit
	DirOnContextLimit
	DirCompactPreserve
	DirCheckpointEvery
	DirAllowFiles
	DirDenyFiles
	DirAllowDir
	DirDenyDir
	DirPrompt
	DirRun
	DirCheckpoint
	DirCompact
	DirPause
	DirNewConversation
	DirRunOnError
	DirRunOutput
	DirRunOutputLimit
	DirRunTimeout
	DirRunCwd
	DirRunEnv
	DirAllowShell
	DirPrologue
	DirEpilogue
	DirHeader
	DirFooter
	DirOutputFormat
	DirOutputFile
)

var directiveKinds = map[string]DirectiveKind{
	"ADAPTER":          DirAdapter,
	"MODEL":            DirModel,
	"MODE":             DirMode,
	"MAX-CYCLES":       DirMaxCycles,
	"CWD":              DirCwd,
	"ADD-DIR":          DirAddDir,
	"CONTEXT":          DirContext,
	"CONTEXT-LIMIT":    DirContextLimit,
	"ON-CONTEXT-LIMIT": DirOnContextLimit,
	"COMPACT-PRESERVE": DirCompactPreserve,
	"CHECKPOINT-EVERY": DirCheckpointEvery,
	"ALLOW-FILES":      DirAllowFiles,
	"DENY-FILES":       DirDenyFiles,
	"ALLOW-DIR":        DirAllowDir,
	"DENY-DIR":         DirDenyDir,
	"PROMPT":           DirPrompt,
	"RUN":              DirRun,
	"CHECKPOINT":       DirCheckpoint,
	"COMPACT":          DirCompact,
	"PAUSE":            DirPause,
	"NEW-CONVERSATION": DirNewConversation,
	"RUN-ON-ERROR":     DirRunOnError,
	"RUN-OUTPUT":       DirRunOutput,
	"RUN-OUTPUT-LIMIT": DirRunOutputLimit,
	"RUN-TIMEOUT":      DirRunTimeout,
	"RUN-CWD":          DirRunCwd,
	"RUN-ENV":          DirRunEnv,
	"ALLOW-SHELL":      DirAllowShell,
	"PROLOGUE":         DirPrologue,
	"EPILOGUE":         DirEpilogue,
	"HEADER":           DirHeader,
	"FOOTER":           DirFooter,
	"OUTPUT-FORMAT":    DirOutputFormat,
	"OUTPUT-FILE":      DirOutputFile,
}

// KindOf maps a keyword to its DirectiveKind, DirUnknown if unrecognized.
func KindOf(keyword string) DirectiveKind {
	return directiveKinds[keyword]
}

// isKeywordShaped reports whether a token has the shape of a directive
// keyword: uppercase ASCII letters, digits and dashes, starting with a
// letter. Lines whose first token is not keyword-shaped are prompt text.
func isKeywordShaped(token string) bool {
	if token == "" {
		return false
	}
	if token[0] < 'A' || token[0] > 'Z' {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}
