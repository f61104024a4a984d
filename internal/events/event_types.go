package events

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketAutoClosed EventType = "ticket_auto_closed"
	EventAssignedToHuman  EventType = "assigned_to_human"
	EventTriageFailed     EventType = "triage_failed"
	EventReplyAdded       EventType = "reply_added"
	EventTicketAssigned   EventType = "ticket_assigned"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	TraceID   string      `json:"trace_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title    string                `json:"title"`
	Category domain.TicketCategory `json:"category"`
	Priority domain.TicketPriority `json:"priority"`
	UserID   string                `json:"user_id"`
}

// TicketAutoClosedPayload payload.
type TicketAutoClosedPayload struct {
	SuggestionID string  `json:"suggestion_id"`
	Confidence   float64 `json:"confidence"`
	Threshold    float64 `json:"threshold"`
}

// AssignedToHumanPayload payload.
type AssignedToHumanPayload struct {
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
	Reason     string  `json:"reason"`
}

// TriageFailedPayload payload.
type TriageFailedPayload struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// ReplyAddedPayload payload.
type ReplyAddedPayload struct {
	AuthorID    *string             `json:"author_id,omitempty"`
	IsAgent     bool                `json:"is_agent"`
	BodyPreview string              `json:"body_preview"`
	NewStatus   domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignerID string `json:"assigner_id"`
	AssigneeID string `json:"assignee_id"`
}
