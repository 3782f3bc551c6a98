// Package trace provides the append-only event stream for patch tasks.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kinopeee/dontforgetest-sub007/internal/util"
)

// Levels for trace events.
const (
	LevelInfo     = "info"
	LevelWarn     = "warn"
	LevelError    = "error"
	LevelDecision = "decision"
)

// Event is a single line in a task's JSONL event stream.
type Event struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"ts"`
	TaskID    string    `json:"task"`
	Level     string    `json:"level"`
	Message   string    `json:"msg,omitempty"`
	Decision  *Decision `json:"decision,omitempty"`
}

// Decision records a pipeline decision point: the rule applied, the
// conditions that were evaluated, and the result chosen.
type Decision struct {
	Rule       string         `json:"rule"`
	Conditions map[string]any `json:"conditions,omitempty"`
	Result     string         `json:"result"`
}

// Recorder writes per-task JSONL event files under <stateDir>/events.
// All writes are fire-and-forget: a failed write never disturbs the task.
type Recorder struct {
	dir string

	mu    sync.Mutex
	tasks map[string]*taskLog
}

type taskLog struct {
	file *os.File
	seq  int
}

// NewRecorder returns a Recorder rooted at stateDir. The events directory
// is created lazily on first write.
func NewRecorder(stateDir string) *Recorder {
	return &Recorder{
		dir:   filepath.Join(stateDir, "events"),
		tasks: make(map[string]*taskLog),
	}
}

// Log appends an event for the task. Errors are swallowed.
func (r *Recorder) Log(taskID, level, message string) {
	r.write(Event{TaskID: taskID, Level: level, Message: message})
}

// Logf appends a formatted event for the task.
func (r *Recorder) Logf(taskID, level, format string, args ...any) {
	r.Log(taskID, level, fmt.Sprintf(format, args...))
}

// Decide appends a decision event for the task.
func (r *Recorder) Decide(taskID, rule string, conditions map[string]any, result string) {
	r.write(Event{
		TaskID:   taskID,
		Level:    LevelDecision,
		Decision: &Decision{Rule: rule, Conditions: conditions, Result: result},
	})
}

func (r *Recorder) write(e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tl, err := r.open(e.TaskID)
	if err != nil {
		return
	}

	tl.seq++
	e.Seq = tl.seq
	e.Timestamp = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if _, err := tl.file.Write(append(data, '\n')); err != nil {
		return
	}
	_ = tl.file.Sync()
}

// open returns the task's log, creating the file on first use and resuming
// the sequence number from any existing events.
func (r *Recorder) open(taskID string) (*taskLog, error) {
	key := util.SanitizeTaskID(taskID)
	if tl, ok := r.tasks[key]; ok {
		return tl, nil
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(r.dir, key+".jsonl")

	seq := 0
	if existing, err := os.Open(path); err == nil {
		dec := json.NewDecoder(existing)
		for dec.More() {
			var e Event
			if err := dec.Decode(&e); err != nil {
				break
			}
			if e.Seq > seq {
				seq = e.Seq
			}
		}
		existing.Close()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	tl := &taskLog{file: file, seq: seq}
	r.tasks[key] = tl
	return tl, nil
}

// FilePath returns the event file a task writes to.
func (r *Recorder) FilePath(taskID string) string {
	return filepath.Join(r.dir, util.SanitizeTaskID(taskID)+".jsonl")
}

// Close closes all open task logs.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, tl := range r.tasks {
		if err := tl.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.tasks, key)
	}
	return firstErr
}

// ReadEvents loads every event recorded for a task, in write order.
func ReadEvents(stateDir, taskID string) ([]Event, error) {
	path := filepath.Join(stateDir, "events", util.SanitizeTaskID(taskID)+".jsonl")
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	dec := json.NewDecoder(file)
	for dec.More() {
		var e Event
		if err := dec.Decode(&e); err != nil {
			return events, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}
