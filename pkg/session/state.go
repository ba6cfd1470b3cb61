// Package session holds the client-side state of one research submission
// and the pure transition function that folds stream events into it.
package session

import (
	"fmt"
	"net/url"
	"time"
)

// Status is the lifecycle position of a session. Researching is the only
// in-progress status and Complete the only one that carries a report.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusResearching Status = "researching"
	StatusComplete    Status = "complete"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Phase labels shown while researching.
const (
	PhaseInitializing = "Initializing..."
	PhaseSearching    = "Searching..."
	PhaseReading      = "Reading sources..."
	PhaseAnalyzing    = "Analyzing data..."
	PhaseSynthesizing = "Synthesizing findings..."
	PhaseWriting      = "Writing report..."
)

type EntryKind string

const (
	EntryUpdate EntryKind = "update"
	EntryError  EntryKind = "error"
)

// LogEntry is one line of the activity log.
type LogEntry struct {
	Seq     int
	Kind    EntryKind
	Message string
	Node    string
	Time    time.Time
}

// Source is a page the backend reported reading, keyed by URL.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Label returns the title when known, otherwise the URL host.
func (s Source) Label() string {
	if s.Title != "" {
		return s.Title
	}
	if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return s.URL
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a short user-facing message produced by a transition.
type Notification struct {
	Level   Level
	Message string
}

// State is the aggregate for a single submission. Values are treated as
// immutable: transitions return a new State and never write through the
// slices of the previous one.
type State struct {
	ID        string
	Topic     string
	Model     string
	Status    Status
	Phase     string
	StartedAt time.Time
	Logs      []LogEntry
	Queries   []string
	Sources   []Source
	Report    *string
}

// New returns the no-activity state of a fresh session.
func New() State {
	return State{Status: StatusIdle}
}

// Start returns the state for a submission that is about to open its
// stream. Everything from a previous submission is dropped.
func Start(id, topic, model string, now time.Time) State {
	return State{
		ID:        id,
		Topic:     topic,
		Model:     model,
		Status:    StatusResearching,
		Phase:     PhaseInitializing,
		StartedAt: now,
	}
}

func (s State) InProgress() bool { return s.Status == StatusResearching }

func (s State) HasReport() bool { return s.Status == StatusComplete && s.Report != nil }

// ReportText returns the report or "" when there is none.
func (s State) ReportText() string {
	if !s.HasReport() {
		return ""
	}
	return *s.Report
}

// Elapsed is the time since the stream was opened, zero when idle.
func (s State) Elapsed(now time.Time) time.Duration {
	if !s.InProgress() || s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// FormatElapsed renders whole seconds as m:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func (s State) nextSeq() int {
	if len(s.Logs) == 0 {
		return 1
	}
	return s.Logs[len(s.Logs)-1].Seq + 1
}
