package domain

import (
	"encoding/json"
	"time"
)

// AuditActor identifies who caused an audit entry.
type AuditActor string

const (
	ActorSystem AuditActor = "system"
	ActorAgent  AuditActor = "agent"
	ActorUser   AuditActor = "user"
)

// AuditAction is the closed set of auditable pipeline steps.
type AuditAction string

const (
	ActionTicketCreated      AuditAction = "TICKET_CREATED"
	ActionTriageStarted      AuditAction = "TRIAGE_STARTED"
	ActionCategoryClassified AuditAction = "CATEGORY_CLASSIFIED"
	ActionKBRetrieved        AuditAction = "KB_RETRIEVED"
	ActionDraftGenerated     AuditAction = "DRAFT_GENERATED"
	ActionAutoClosed         AuditAction = "AUTO_CLOSED"
	ActionAssignedToHuman    AuditAction = "ASSIGNED_TO_HUMAN"
	ActionReplySent          AuditAction = "REPLY_SENT"
	ActionStatusChanged      AuditAction = "STATUS_CHANGED"
	ActionTicketAssigned     AuditAction = "TICKET_ASSIGNED"
	ActionTriageFailed       AuditAction = "TRIAGE_FAILED"
)

// AuditLogEntry is one append-only record in a ticket's audit trail. TraceID
// links every entry produced by a single triage attempt chain.
type AuditLogEntry struct {
	ID        string
	TicketID  string
	TraceID   string
	Actor     AuditActor
	Action    AuditAction
	Meta      json.RawMessage
	Timestamp time.Time
}

// Typed meta payloads, one per action kind. Writers construct these so the
// compiler checks the shape; the store keeps them as JSONB.

// TicketCreatedMeta accompanies ActionTicketCreated.
type TicketCreatedMeta struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// TriageStartedMeta accompanies ActionTriageStarted.
type TriageStartedMeta struct {
	TicketTitle string `json:"ticket_title"`
	Attempt     int    `json:"attempt"`
}

// CategoryClassifiedMeta accompanies ActionCategoryClassified.
type CategoryClassifiedMeta struct {
	PredictedCategory TicketCategory `json:"predicted_category"`
	Confidence        float64        `json:"confidence"`
}

// KBRetrievedMeta accompanies ActionKBRetrieved.
type KBRetrievedMeta struct {
	ArticleIDs []string `json:"article_ids"`
	Count      int      `json:"count"`
}

// DraftGeneratedMeta accompanies ActionDraftGenerated.
type DraftGeneratedMeta struct {
	DraftLength int `json:"draft_length"`
}

// AutoClosedMeta accompanies ActionAutoClosed.
type AutoClosedMeta struct {
	Confidence   float64 `json:"confidence"`
	Threshold    float64 `json:"threshold"`
	SuggestionID string  `json:"suggestion_id"`
}

// AssignedToHumanMeta accompanies ActionAssignedToHuman.
type AssignedToHumanMeta struct {
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
	Reason     string  `json:"reason"`
}

// ReplySentMeta accompanies ActionReplySent.
type ReplySentMeta struct {
	AgentID       string       `json:"agent_id"`
	ContentLength int          `json:"content_length"`
	NewStatus     TicketStatus `json:"new_status"`
}

// StatusChangedMeta accompanies ActionStatusChanged.
type StatusChangedMeta struct {
	OldStatus TicketStatus `json:"old_status"`
	NewStatus TicketStatus `json:"new_status"`
}

// TicketAssignedMeta accompanies ActionTicketAssigned.
type TicketAssignedMeta struct {
	AssignerID string `json:"assigner_id"`
	AssigneeID string `json:"assignee_id"`
}

// TriageFailedMeta accompanies ActionTriageFailed.
type TriageFailedMeta struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Attempts int    `json:"attempts"`
}

// MarshalMeta encodes a typed payload for storage. A payload that cannot be
// marshaled is a programming error surfaced as empty meta.
func MarshalMeta(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
