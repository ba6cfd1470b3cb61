// Package stream implements the line-framed event protocol spoken by the
// research backend: every event is a single "data: <json>" line.
package stream

// EventType discriminates the payload of an Event.
type EventType string

const (
	TypeUpdate   EventType = "update"
	TypeComplete EventType = "complete"
	TypeError    EventType = "error"
)

// Event is one decoded progress record.
//
// update carries Message and an optional Node, complete carries Report,
// error carries Message.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Node    string    `json:"node,omitempty"`
	Report  string    `json:"report,omitempty"`
}

// Terminal reports whether no further transitions are expected after e.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

func (t EventType) valid() bool {
	switch t {
	case TypeUpdate, TypeComplete, TypeError:
		return true
	}
	return false
}

// Update builds an update event.
func Update(node, message string) Event {
	return Event{Type: TypeUpdate, Node: node, Message: message}
}

// Complete builds the terminal success event.
func Complete(report string) Event {
	return Event{Type: TypeComplete, Report: report}
}

// Failure builds the terminal error event.
func Failure(message string) Event {
	return Event{Type: TypeError, Message: message}
}
