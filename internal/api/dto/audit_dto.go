package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// AuditEntryResponse is one row of the audit trail.
type AuditEntryResponse struct {
	ID        string             `json:"id"`
	TicketID  string             `json:"ticket_id"`
	TraceID   string             `json:"trace_id"`
	Actor     domain.AuditActor  `json:"actor"`
	Action    domain.AuditAction `json:"action"`
	Meta      json.RawMessage    `json:"meta"`
	Timestamp time.Time          `json:"timestamp"`
}

// AuditPageResponse wraps a paginated audit listing.
type AuditPageResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
}
