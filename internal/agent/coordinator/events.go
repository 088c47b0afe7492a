package coordinator

import (
	"errors"
	"strings"

	"github.com/moolen/sre-assistant/internal/agent/loop"
)

// EventType is the kind of a turn event.
type EventType string

const (
	EventThinking     EventType = "thinking"
	EventToolUse      EventType = "tool_use"
	EventAgentMessage EventType = "agent_message"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Status texts shown to users.
const (
	StatusThinking = "Analyzing your request..."
	StatusComplete = "Processing completed"
)

// Event is one entry of a turn. Only the fields of its type are set.
type Event struct {
	Type     EventType `json:"type"`
	Status   string    `json:"status,omitempty"`
	ToolName string    `json:"tool_name,omitempty"`
	Content  string    `json:"content,omitempty"`
	IsChunk  bool      `json:"is_chunk,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Terminal reports whether e ends a turn.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func thinkingEvent() Event {
	return Event{Type: EventThinking, Status: StatusThinking}
}

func toolUseEvent(name string) Event {
	return Event{Type: EventToolUse, ToolName: name, Status: "Using " + name + "..."}
}

func messageEvent(text string) Event {
	return Event{Type: EventAgentMessage, Content: text, IsChunk: true}
}

func completeEvent() Event {
	return Event{Type: EventComplete, Status: StatusComplete}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Normalize maps a loop notification onto its public event.
func Normalize(n loop.Notification) Event {
	switch n.Kind {
	case loop.StepStart:
		return thinkingEvent()
	case loop.ToolInvocationStarted:
		return toolUseEvent(n.Name)
	case loop.TextDelta:
		return messageEvent(n.Text)
	case loop.Complete:
		return completeEvent()
	default:
		return errorEvent("unknown notification " + n.Kind.String())
	}
}

// Transcript is the ordered event sequence of one turn.
type Transcript struct {
	Events []Event
}

// Collect drains events into a Transcript.
func Collect(events <-chan Event) *Transcript {
	t := &Transcript{}
	for e := range events {
		t.Events = append(t.Events, e)
	}
	return t
}

// Response concatenates the agent_message chunks.
func (t *Transcript) Response() string {
	var b strings.Builder
	for _, e := range t.Events {
		if e.Type == EventAgentMessage {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

// ToolNames lists the tool_use names in order.
func (t *Transcript) ToolNames() []string {
	var names []string
	for _, e := range t.Events {
		if e.Type == EventToolUse {
			names = append(names, e.ToolName)
		}
	}
	return names
}

// Terminal returns the last event, which ends every turn.
func (t *Transcript) Terminal() (Event, bool) {
	if len(t.Events) == 0 {
		return Event{}, false
	}
	last := t.Events[len(t.Events)-1]
	return last, last.Terminal()
}

// Err returns the message of a turn that ended with error.
func (t *Transcript) Err() error {
	last, ok := t.Terminal()
	if !ok {
		return errors.New("turn ended without a terminal event")
	}
	if last.Type == EventError {
		return errors.New(last.Message)
	}
	return nil
}
