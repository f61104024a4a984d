package dto

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Category       domain.TicketCategory `json:"category"`
	Priority       domain.TicketPriority `json:"priority"`
	AttachmentURLs []string              `json:"attachment_urls"`
}

// ReplyRequest payload for agent replies.
type ReplyRequest struct {
	Content      string               `json:"content"`
	ChangeStatus *domain.TicketStatus `json:"change_status,omitempty"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Title       string                `json:"title"`
	Category    domain.TicketCategory `json:"category"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Assignee    *string               `json:"assignee"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID             string                  `json:"id"`
	ExternalKey    string                  `json:"external_key"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Category       domain.TicketCategory   `json:"category"`
	Status         domain.TicketStatus     `json:"status"`
	Priority       domain.TicketPriority   `json:"priority"`
	Assignee       *string                 `json:"assignee"`
	AttachmentURLs []string                `json:"attachment_urls"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	ClosedAt       *time.Time              `json:"closed_at"`
	Replies        []ReplyResponse         `json:"replies"`
	Suggestion     *AgentSuggestionSummary `json:"agent_suggestion,omitempty"`
}

// ReplyResponse represents one thread entry.
type ReplyResponse struct {
	ID        string    `json:"id"`
	AuthorID  *string   `json:"author_id"`
	Content   string    `json:"content"`
	IsAgent   bool      `json:"is_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// AgentSuggestionSummary exposes the classifier outcome attached to a ticket.
type AgentSuggestionSummary struct {
	ID                string                `json:"id"`
	PredictedCategory domain.TicketCategory `json:"predicted_category"`
	Confidence        float64               `json:"confidence"`
	ArticleIDs        []string              `json:"article_ids"`
	DraftReply        string                `json:"draft_reply"`
	AutoClosed        bool                  `json:"auto_closed"`
	ModelInfo         domain.ModelInfo      `json:"model_info"`
	CreatedAt         time.Time             `json:"created_at"`
}

// TriageJobResponse acknowledges a queued triage run.
type TriageJobResponse struct {
	TicketID string `json:"ticket_id"`
	TraceID  string `json:"trace_id"`
}
