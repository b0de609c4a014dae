package session

import "time"

// RunRecord is one row of run history.
type RunRecord struct {
	ID        string
	Workflow  string
	Target    string
	Adapter   string
	Status    string // running, completed, failed, paused
	Cycles    int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TurnRecord is one prompt or response captured during a run.
type TurnRecord struct {
	ID          int
	RunID       string
	Cycle       int
	PromptIndex int
	Role        string // user, assistant
	Content     string
	Tokens      int
	Timestamp   time.Time
}

// RunSummary is a high-level view of a run for listing.
type RunSummary struct {
	ID        string
	Workflow  string
	Target    string
	Status    string
	Cycles    int
	Turns     int
	UpdatedAt time.Time
}
