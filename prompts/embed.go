package prompts

import _ "embed"

//go:embed compact/summary.md
var CompactSummaryPrompt string

//go:embed run/retry.md.tmpl
var RetryFixTemplate string

//go:embed init/starter.sdq
var StarterWorkflow string
