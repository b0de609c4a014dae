// checkpoint.go persists resumable session snapshots as JSON under the
// state directory. Paths are content-addressed from the workflow source
// and unit id so parallel units never collide.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bewest/sdqctl-sub002/internal/contextmgr"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// CheckpointType says why the snapshot was taken.
type CheckpointType string

const (
	CheckpointPause CheckpointType = "pause" // explicit PAUSE step
	CheckpointCycle CheckpointType = "cycle" // CHECKPOINT step or checkpoint-every policy
	CheckpointError CheckpointType = "error" // failing RUN with on-error stop
)

// Checkpoint is the on-disk snapshot allowing a later resume.
type Checkpoint struct {
	Type              CheckpointType `json:"type"`
	Name              string         `json:"name,omitempty"`
	Message           string         `json:"message,omitempty"`
	SessionID         string         `json:"session_id"`
	Nonce             string         `json:"nonce,omitempty"`
	WorkflowPath      string         `json:"workflow_path,omitempty"`
	WorkflowText      string         `json:"workflow_text,omitempty"`
	Target            string         `json:"target,omitempty"`
	CycleNumber       int            `json:"cycle_number"`
	PromptIndex       int            `json:"prompt_index"`
	StepIndex         int            `json:"step_index"`
	Mode              string         `json:"mode,omitempty"`
	AdapterName       string         `json:"adapter,omitempty"`
	BackendCheckpoint string         `json:"backend_checkpoint,omitempty"`
	Messages          []Message      `json:"messages,omitempty"`
	Stats             Stats          `json:"stats"`
	ContextStatus     string         `json:"context_status,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`

	path string // where Load found it, for error messages
}

// Snapshot captures the session into a checkpoint of the given type.
// backendCheckpoint is the adapter-side anchor, empty when the adapter
// has none.
func (s *Session) Snapshot(cpType CheckpointType, name, message, backendCheckpoint string) *Checkpoint {
	cp := &Checkpoint{
		Type:              cpType,
		Name:              name,
		Message:           message,
		SessionID:         s.ID,
		Nonce:             s.Nonce,
		Target:            s.Target,
		CycleNumber:       s.CycleNumber,
		PromptIndex:       s.PromptIndex,
		StepIndex:         s.StepIndex,
		Mode:              string(s.Mode),
		BackendCheckpoint: backendCheckpoint,
		Messages:          s.Messages,
		Stats:             s.Stats,
		CreatedAt:         time.Now(),
	}
	if s.Workflow != nil {
		cp.AdapterName = s.Workflow.Adapter
		if s.Workflow.IsInline() {
			cp.WorkflowText = s.Workflow.Serialize()
		} else {
			cp.WorkflowPath = s.Workflow.Source
		}
	}
	if s.Context != nil {
		cp.ContextStatus = fmt.Sprintf("%d files, ~%d tokens", s.Context.FileCount(), s.Context.TotalTokens())
	}
	return cp
}

// CheckpointPath returns the content-addressed checkpoint file for a
// workflow and unit. The same inputs always map to the same file, so a
// re-run of an interrupted unit finds its own snapshot.
func CheckpointPath(dir, workflowSource, unitID string) string {
	return filepath.Join(dir, checkpointKey(workflowSource, unitID)+".json")
}

// PausePath returns the pause snapshot file for a workflow and unit.
// Pause files live beside cycle checkpoints under a distinct prefix so
// resume can prefer them.
func PausePath(dir, workflowSource, unitID string) string {
	return filepath.Join(dir, "pause-"+checkpointKey(workflowSource, unitID)+".json")
}

func checkpointKey(workflowSource, unitID string) string {
	sum := sha256.Sum256([]byte(workflowSource + "\x00" + unitID))
	return hex.EncodeToString(sum[:])[:16]
}

// Save writes the checkpoint, creating the directory if needed.
func (cp *Checkpoint) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	cp.path = path
	return nil
}

// LoadCheckpoint reads a checkpoint file. A missing file is not an
// error; it returns nil.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", path, err)
	}
	cp.path = path
	return &cp, nil
}

// ClearCheckpoint removes a checkpoint file if present.
func ClearCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}

// Path reports where Load found this checkpoint, or where Save put it.
func (cp *Checkpoint) Path() string { return cp.path }

// ResumeDocument reloads the workflow the checkpoint references. When
// the workflow file has moved, the error names both the checkpoint and
// the missing workflow so the situation is diagnosable from the message
// alone.
func (cp *Checkpoint) ResumeDocument() (*workflow.Document, error) {
	if cp.WorkflowText != "" {
		doc, err := workflow.Parse(cp.WorkflowText, filepath.Dir(cp.path))
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: embedded workflow is invalid: %w", cp.path, err)
		}
		return doc, nil
	}
	doc, err := workflow.ParseFile(cp.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s references workflow %s which cannot be loaded: %w", cp.path, cp.WorkflowPath, err)
	}
	return doc, nil
}

// RestoreSession rebuilds a session from the checkpoint. The caller
// supplies the reloaded document and a freshly gathered context manager.
func RestoreSession(cp *Checkpoint, doc *workflow.Document, ctx *contextmgr.Manager, maxCycles, thresholdPercent int) *Session {
	s := New(doc, ctx, workflow.SessionMode(cp.Mode), maxCycles, thresholdPercent)
	s.ID = cp.SessionID
	if cp.Nonce != "" {
		s.Nonce = cp.Nonce
	}
	s.Target = cp.Target
	s.CycleNumber = cp.CycleNumber
	s.PromptIndex = cp.PromptIndex
	s.StepIndex = cp.StepIndex
	s.Messages = cp.Messages
	s.Stats = cp.Stats
	return s
}
