package events

import (
	"time"

	"ephemcp/internal/api"
)

// EventType represents the type/severity of a Kubernetes Event.
type EventType string

const (
	// EventTypeNormal indicates normal, non-problematic events.
	EventTypeNormal EventType = "Normal"

	// EventTypeWarning indicates events that may require attention.
	EventTypeWarning EventType = "Warning"
)

// EventReason represents the reason code for an event.
type EventReason string

const (
	ReasonServerPending     EventReason = "MCPServerPending"
	ReasonServerStarting    EventReason = "MCPServerStarting"
	ReasonServerReady       EventReason = "MCPServerReady"
	ReasonServerInUse       EventReason = "MCPServerInUse"
	ReasonServerTerminating EventReason = "MCPServerTerminating"
	ReasonServerDeleted     EventReason = "MCPServerDeleted"
	ReasonServerFailed      EventReason = "MCPServerFailed"
)

// ReasonFor maps the target state of a transition to its event reason.
func ReasonFor(to api.State) EventReason {
	switch to {
	case api.StatePending:
		return ReasonServerPending
	case api.StateWaiting:
		return ReasonServerStarting
	case api.StateReady:
		return ReasonServerReady
	case api.StateRunning:
		return ReasonServerInUse
	case api.StateTerminating:
		return ReasonServerTerminating
	case api.StateDeleted:
		return ReasonServerDeleted
	default:
		return ReasonServerFailed
	}
}

// TypeFor returns Warning for failures and Normal otherwise.
func TypeFor(reason EventReason) EventType {
	if reason == ReasonServerFailed {
		return EventTypeWarning
	}
	return EventTypeNormal
}

// EventData holds the values available to message templates.
type EventData struct {
	ServerID  string
	Namespace string
	From      api.State
	To        api.State
	Reason    string
	Error     string
	Age       time.Duration
}

// DataFrom builds template data from a state change.
func DataFrom(ev api.StateChangeEvent, namespace string) EventData {
	return EventData{
		ServerID:  ev.ServerID,
		Namespace: namespace,
		From:      ev.From,
		To:        ev.To,
		Reason:    ev.Reason,
		Error:     ev.Error,
	}
}
