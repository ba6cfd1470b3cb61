package session

import (
	"slices"
	"strings"
	"time"

	"github.com/mikeboe/research-console/pkg/stream"
)

// Message markers emitted by the backend. They are a compatibility
// contract and must match byte for byte.
const (
	markerSearching    = "Searching for:"
	markerScraping     = "Scraping:"
	markerAnalyzing    = "ANALYZING"
	markerSynthesizing = "SYNTHESIZING"
	markerWriting      = "WRITING"
)

const (
	MsgCompleted    = "Research completed successfully!"
	MsgBackendError = "Research encountered an error"
)

// Apply folds one event into s. Events arriving when s is not in
// progress are ignored, so nothing can follow a terminal event.
func Apply(s State, ev stream.Event, now time.Time) (State, *Notification) {
	if !s.InProgress() {
		return s, nil
	}

	switch ev.Type {
	case stream.TypeUpdate:
		return applyUpdate(s, ev, now), nil

	case stream.TypeComplete:
		report := ev.Report
		s.Report = &report
		s.Status = StatusComplete
		return s, &Notification{Level: LevelSuccess, Message: MsgCompleted}

	case stream.TypeError:
		msg := ev.Message
		if msg == "" {
			msg = MsgBackendError
		}
		s = appendLog(s, LogEntry{Kind: EntryError, Message: msg, Time: now})
		s.Report = nil
		s.Status = StatusFailed
		return s, &Notification{Level: LevelError, Message: MsgBackendError}
	}

	return s, nil
}

func applyUpdate(s State, ev stream.Event, now time.Time) State {
	msg := ev.Message

	switch {
	case strings.HasPrefix(msg, markerSearching):
		if q := strings.TrimSpace(strings.TrimPrefix(msg, markerSearching)); q != "" && !slices.Contains(s.Queries, q) {
			s.Queries = append(slices.Clip(s.Queries), q)
		}
		s.Phase = PhaseSearching
	case strings.HasPrefix(msg, markerScraping):
		if u := strings.TrimSpace(strings.TrimPrefix(msg, markerScraping)); u != "" && !hasSource(s.Sources, u) {
			s.Sources = append(slices.Clip(s.Sources), Source{URL: u})
		}
		s.Phase = PhaseReading
	case strings.Contains(msg, markerAnalyzing):
		s.Phase = PhaseAnalyzing
	case strings.Contains(msg, markerSynthesizing):
		s.Phase = PhaseSynthesizing
	case strings.Contains(msg, markerWriting):
		s.Phase = PhaseWriting
	}

	return appendLog(s, LogEntry{Kind: EntryUpdate, Message: msg, Node: ev.Node, Time: now})
}

// Fail ends an in-progress session because the transport broke. The
// message becomes both the log entry and the notification.
func Fail(s State, message string, now time.Time) (State, *Notification) {
	if !s.InProgress() {
		return s, nil
	}
	s = appendLog(s, LogEntry{Kind: EntryError, Message: message, Time: now})
	s.Report = nil
	s.Status = StatusFailed
	return s, &Notification{Level: LevelError, Message: message}
}

// Interrupt ends an in-progress session whose stream closed without a
// terminal event. No report and no notification.
func Interrupt(s State) State {
	if !s.InProgress() {
		return s
	}
	s.Status = StatusInterrupted
	s.Report = nil
	return s
}

// Replay folds a whole event sequence into s.
func Replay(s State, events []stream.Event, now time.Time) (State, []Notification) {
	var notes []Notification
	for _, ev := range events {
		var n *Notification
		s, n = Apply(s, ev, now)
		if n != nil {
			notes = append(notes, *n)
		}
	}
	return s, notes
}

func appendLog(s State, entry LogEntry) State {
	entry.Seq = s.nextSeq()
	s.Logs = append(slices.Clip(s.Logs), entry)
	return s
}

func hasSource(sources []Source, u string) bool {
	return slices.ContainsFunc(sources, func(src Source) bool { return src.URL == u })
}
