package session

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store provides SQLite-backed run history. All writes are best-effort
// from the caller's point of view: a broken history database should
// never abort a run, so callers log store errors and move on.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates tables if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		workflow TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		adapter TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		cycles INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		prompt_index INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tokens INTEGER DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRun records the start of a run and returns its row.
func (s *Store) CreateRun(workflow, target, adapterName string) (*RunRecord, error) {
	id := uuid.New().String()
	now := time.Now()

	_, err := s.db.Exec(
		`INSERT INTO runs (id, workflow, target, adapter, status, cycles, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'running', 0, ?, ?)`,
		id, workflow, target, adapterName, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return &RunRecord{
		ID:        id,
		Workflow:  workflow,
		Target:    target,
		Adapter:   adapterName,
		Status:    "running",
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FinishRun records the run's final status, cycle count, and error text.
func (s *Store) FinishRun(id, status string, cycles int, errText string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, cycles = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		status, cycles, errText, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID. Missing runs return nil.
func (s *Store) GetRun(id string) (*RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, workflow, target, adapter, status, cycles, error, created_at, updated_at
		 FROM runs WHERE id = ?`,
		id,
	)

	var run RunRecord
	err := row.Scan(&run.ID, &run.Workflow, &run.Target, &run.Adapter, &run.Status, &run.Cycles, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	return &run, nil
}

// RecentRuns returns summaries of the most recent runs with their turn counts.
func (s *Store) RecentRuns(limit int) ([]RunSummary, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.workflow, r.target, r.status, r.cycles,
		        COALESCE(COUNT(t.id), 0) as turns,
		        r.updated_at
		 FROM runs r
		 LEFT JOIN turns t ON r.id = t.run_id
		 GROUP BY r.id
		 ORDER BY r.updated_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		if err := rows.Scan(&sum.ID, &sum.Workflow, &sum.Target, &sum.Status, &sum.Cycles, &sum.Turns, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return summaries, nil
}

// AddTurn records one prompt or response in a run's transcript.
func (s *Store) AddTurn(runID string, cycle, promptIndex int, role, content string, tokens int) error {
	_, err := s.db.Exec(
		`INSERT INTO turns (run_id, cycle, prompt_index, role, content, tokens, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, cycle, promptIndex, role, content, tokens, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return nil
}

// GetTurns retrieves all turns for a run in order.
func (s *Store) GetTurns(runID string) ([]TurnRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, cycle, prompt_index, role, content, tokens, timestamp
		 FROM turns
		 WHERE run_id = ?
		 ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []TurnRecord
	for rows.Next() {
		var turn TurnRecord
		if err := rows.Scan(&turn.ID, &turn.RunID, &turn.Cycle, &turn.PromptIndex, &turn.Role, &turn.Content, &turn.Tokens, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return turns, nil
}
