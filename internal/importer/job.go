package importer

import (
	"fmt"
	"strings"
	"sync"
)

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Snapshot is the full state of a job at one point in time. Every progress
// event carries a complete snapshot, so a late subscriber can render current
// state from the latest one alone.
type Snapshot struct {
	JobID     string `json:"job_id"`
	Status    Status `json:"status"`
	Percent   int    `json:"percent"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

// maxFailureLines bounds how many row failures are kept verbatim in the job
// message; older ones are summarized by the running error count.
const maxFailureLines = 8

// activeJob is the mutable state of one import run. The processing goroutine
// is the sole writer; listeners receive read-only snapshots.
type activeJob struct {
	id        string
	fileName  string
	total     int
	processed int
	errors    int
	percent   int
	status    Status
	message   string
	failures  []string // last maxFailureLines row failures

	mu        sync.Mutex
	listeners []chan Snapshot
	closed    bool
}

// snapshotLocked builds a Snapshot from current state. Caller holds mu.
func (j *activeJob) snapshotLocked() Snapshot {
	return Snapshot{
		JobID:     j.id,
		Status:    j.status,
		Percent:   j.percent,
		Processed: j.processed,
		Errors:    j.errors,
		Total:     j.total,
		Message:   j.message,
	}
}

// Snapshot returns the current state.
func (j *activeJob) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

// update runs fn while holding the job lock. The processing goroutine uses
// it for every state mutation so snapshots never observe torn state.
func (j *activeJob) update(fn func()) {
	j.mu.Lock()
	fn()
	j.mu.Unlock()
}

// recordFailure appends one row failure, keeping the verbatim tail bounded.
// Caller holds mu (via update).
func (j *activeJob) recordFailure(line int, reason string) {
	j.errors++
	j.failures = append(j.failures, fmt.Sprintf("row %d: %s", line, reason))
	if len(j.failures) > maxFailureLines {
		j.failures = j.failures[len(j.failures)-maxFailureLines:]
	}
	j.message = j.failureSummary()
}

// failureSummary renders the bounded failure message.
func (j *activeJob) failureSummary() string {
	if j.errors == 0 {
		return ""
	}
	summary := fmt.Sprintf("%d rows failed", j.errors)
	if j.errors == 1 {
		summary = "1 row failed"
	}
	return summary + "; recent: " + strings.Join(j.failures, "; ")
}

// subscribe registers a listener channel and immediately delivers the current
// snapshot. If the job is already terminal the channel holds the terminal
// snapshot and is closed.
func (j *activeJob) subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)

	j.mu.Lock()
	defer j.mu.Unlock()

	ch <- j.snapshotLocked()
	if j.closed {
		close(ch)
		return ch
	}
	j.listeners = append(j.listeners, ch)
	return ch
}

// notify broadcasts the current snapshot to all listeners. Slow listeners
// have their oldest buffered snapshot dropped rather than back-pressuring
// the processor; the latest state always lands in the buffer.
func (j *activeJob) notify() {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := j.snapshotLocked()

	for _, ch := range j.listeners {
		select {
		case ch <- snap:
		default:
			// Buffer full: evict the oldest snapshot to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// finish emits the terminal snapshot and closes every listener channel.
func (j *activeJob) finish() {
	j.notify()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.closed = true
	for _, ch := range j.listeners {
		close(ch)
	}
	j.listeners = nil
}
