// Package loopdetect decides when an agent conversation has stopped
// making progress and the cycle loop should end early.
package loopdetect

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Trigger identifies which signal fired.
type Trigger string

const (
	TriggerStopFile Trigger = "stop_file"
	TriggerPhrase   Trigger = "reasoning_phrase"
	TriggerRepeat   Trigger = "identical_responses"
	TriggerMinimal  Trigger = "minimal_response"
)

// Signal describes a detected stall. Detail is human-readable and safe
// to log verbatim.
type Signal struct {
	Trigger Trigger
	Detail  string
}

// defaultMinResponseLen is the minimal-response floor when the config
// leaves it unset. Responses shorter than the floor after the first
// cycle mean the agent has nothing left to say.
const defaultMinResponseLen = 20

// stuckPhrases are matched case-insensitively anywhere in a turn's
// reasoning or response text.
var stuckPhrases = []string{
	"going in circles",
	"stuck in a loop",
	"repeating myself",
	"we've been here before",
	"i've tried this before",
	"tried this already",
	"same approach again",
	"no further progress",
	"cannot make progress",
	"nothing left to do",
	"nothing more to do",
}

// Detector accumulates responses across cycles and reports when the
// conversation is looping. One detector serves one session; parallel
// units each build their own.
type Detector struct {
	mu        sync.Mutex
	threshold int    // repeats beyond the first before TriggerRepeat fires
	minLen    int    // minimal-response floor after cycle 1
	stopFile  string // empty disables the stop-file check
	last      string
	seen      int // consecutive occurrences of last
}

// New creates a detector. threshold is the number of identical repeats
// tolerated before firing; minResponseLen is the minimal-response floor.
// Values below 1 fall back to the defaults (2 repeats, 20 characters).
func New(threshold, minResponseLen int, stopFile string) *Detector {
	if threshold < 1 {
		threshold = 2
	}
	if minResponseLen < 1 {
		minResponseLen = defaultMinResponseLen
	}
	return &Detector{threshold: threshold, minLen: minResponseLen, stopFile: stopFile}
}

// Check records a completed turn and reports whether the session should
// stop. reasoning is the model's reasoning text when the backend streams
// it, empty otherwise; the phrase scan covers both it and the response.
// The stop file wins over every text-based signal so an operator (or
// the agent itself) can always end a run deterministically. A nil
// result means keep going.
func (d *Detector) Check(reasoning, response string, cycle int) *Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	trimmed := strings.TrimSpace(response)
	if trimmed == d.last {
		d.seen++
	} else {
		d.last = trimmed
		d.seen = 1
	}

	if d.stopRequested() {
		return &Signal{Trigger: TriggerStopFile, Detail: "stop file present: " + d.stopFile}
	}

	lower := strings.ToLower(reasoning) + "\n" + strings.ToLower(trimmed)
	for _, phrase := range stuckPhrases {
		if strings.Contains(lower, phrase) {
			return &Signal{Trigger: TriggerPhrase, Detail: fmt.Sprintf("agent reported %q", phrase)}
		}
	}

	if d.seen > d.threshold {
		return &Signal{
			Trigger: TriggerRepeat,
			Detail:  fmt.Sprintf("same response %d times in a row", d.seen),
		}
	}

	if cycle > 1 && len(trimmed) < d.minLen {
		return &Signal{
			Trigger: TriggerMinimal,
			Detail:  fmt.Sprintf("response shrank to %d characters after cycle 1", len(trimmed)),
		}
	}

	return nil
}

// StopRequested reports whether the stop file exists, independent of
// any response. The executor polls this between steps.
func (d *Detector) StopRequested() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopRequested()
}

func (d *Detector) stopRequested() bool {
	if d.stopFile == "" {
		return false
	}
	_, err := os.Stat(d.stopFile)
	return err == nil
}

// Reset clears the repeat history. Fresh-mode cycles call this when the
// backend conversation is replaced.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
	d.seen = 0
}

// Threshold exposes the configured repeat tolerance.
func (d *Detector) Threshold() int { return d.threshold }
