// pool.go tracks unit progress across a batch run.
package orchestrator

import (
	"fmt"
	"sync"
)

// Pool counts unit outcomes for a batch. All methods are safe for
// concurrent use; single-unit runs pay nothing for the mutex.
type Pool struct {
	mu        sync.Mutex
	Total     int
	Completed int
	Paused    int
	Failed    int
}

// NewPool creates a Pool expecting total units.
func NewPool(total int) *Pool {
	return &Pool{Total: total}
}

// RecordCompletion increments the completed count.
func (p *Pool) RecordCompletion() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Completed++
}

// RecordPause increments the paused count.
func (p *Pool) RecordPause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Paused++
}

// RecordFailure increments the failed count.
func (p *Pool) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Failed++
}

// Progress returns a formatted progress string like "[2/5]".
func (p *Pool) Progress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := p.Completed + p.Paused + p.Failed
	return fmt.Sprintf("[%d/%d]", done, p.Total)
}

// IsComplete reports whether every unit has been accounted for.
func (p *Pool) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return (p.Completed + p.Paused + p.Failed) >= p.Total
}
