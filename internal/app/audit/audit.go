// Package audit keeps a bounded in-memory trail of workflow actions with an
// optional JSONL file sink.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/openlend/review_service/pkg/logger"
)

// Event is one recorded workflow action.
type Event struct {
	Time          time.Time              `json:"time"`
	ActorID       string                 `json:"actor_id"`
	Action        string                 `json:"action"`
	ApplicationID string                 `json:"application_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// Actions recorded by the HTTP layer.
const (
	ActionSubmitApplication = "application.submit"
	ActionUpdateStatus      = "application.status"
	ActionAssignReviewers   = "assignment.replace"
	ActionSubmitReview      = "review.submit"
	ActionSelectPrimary     = "selection.primary"
	ActionCreateReviewer    = "reviewer.create"
	ActionUpdateReviewer    = "reviewer.update"
)

// Trail is a fixed-size ring of recent events. When a file path is
// configured, every event is also appended as one JSON line.
type Trail struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
	file   *os.File
	log    *logger.Logger
}

// NewTrail creates a trail holding at most size events. An empty path
// disables the file sink.
func NewTrail(size int, path string, log *logger.Logger) (*Trail, error) {
	if size <= 0 {
		size = 1024
	}
	if log == nil {
		log = logger.NewDefault("audit")
	}

	t := &Trail{events: make([]Event, size), log: log}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		t.file = f
	}
	return t, nil
}

// Record appends an event. The time is stamped here.
func (t *Trail) Record(event Event) {
	event.Time = time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.events[t.next] = event
	t.next = (t.next + 1) % len(t.events)
	if t.next == 0 {
		t.full = true
	}

	if t.file != nil {
		line, err := json.Marshal(event)
		if err != nil {
			t.log.WithError(err).Error("audit event marshal failed")
			return
		}
		if _, err := t.file.Write(append(line, '\n')); err != nil {
			t.log.WithError(err).Error("audit sink write failed")
		}
	}
}

// Recent returns up to n events, newest first.
func (t *Trail) Recent(n int) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := len(t.events)
	count := t.next
	if t.full {
		count = size
	}
	if n > count {
		n = count
	}

	result := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.next - 1 - i + size) % size
		result = append(result, t.events[idx])
	}
	return result
}

// Close flushes and closes the file sink, if any.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
