package supervisor

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation marks a Listen frame with no output member set.
var ErrProtocolViolation = errors.New("supervisor: listen frame has no output")

// EventKind identifies the populated member of an Event.
type EventKind int

const (
	EventNone EventKind = iota
	EventData
	EventExit
	EventTitle
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventData:
		return "data"
	case EventExit:
		return "exit"
	case EventTitle:
		return "title"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one ordered update for a remote terminal.
type Event struct {
	Kind        EventKind
	Title       string
	Data        []byte
	ExitCode    int32
	TitleSource TitleSource
}

func TitleChanged(title string) Event { return Event{Kind: EventTitle, Title: title} }

func Data(p []byte) Event { return Event{Kind: EventData, Data: p} }

func Exited(code int32) Event { return Event{Kind: EventExit, ExitCode: code} }

// Validate reports ErrProtocolViolation for events without a known member.
func (e Event) Validate() error {
	switch e.Kind {
	case EventData, EventExit, EventTitle:
		return nil
	default:
		return ErrProtocolViolation
	}
}

func (e Event) String() string {
	switch e.Kind {
	case EventData:
		return fmt.Sprintf("data(%d bytes)", len(e.Data))
	case EventExit:
		return fmt.Sprintf("exit(%d)", e.ExitCode)
	case EventTitle:
		return fmt.Sprintf("title(%q)", e.Title)
	default:
		return e.Kind.String()
	}
}
