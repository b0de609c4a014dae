package session

import "github.com/bewest/sdqctl-sub002/internal/adapter"

// Stats accumulates best-effort counters for one session. Counters only
// ever grow; a fresh-mode reset keeps them so the final report covers
// the whole run.
type Stats struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Turns        int `json:"turns"`
	ToolCalls    int `json:"tool_calls"`
	CommandsRun  int `json:"commands_run"`
	Compactions  int `json:"compactions"`
	Checkpoints  int `json:"checkpoints"`
}

// AddTurn folds one completed turn into the counters.
func (st *Stats) AddTurn(res *adapter.TurnResult) {
	st.Turns++
	st.ToolCalls += res.ToolCalls
}

// TotalTokens is the combined token count for reports.
func (st *Stats) TotalTokens() int {
	return st.InputTokens + st.OutputTokens
}
