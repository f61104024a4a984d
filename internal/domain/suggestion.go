package domain

import "time"

// ModelInfo records provenance for one classifier invocation.
type ModelInfo struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	PromptVersion string `json:"prompt_version"`
	LatencyMs     int64  `json:"latency_ms"`
}

// AgentSuggestion is the immutable outcome of one classification attempt.
// A ticket accumulates one per triage attempt; the ticket's
// AgentSuggestionID always points at the latest.
type AgentSuggestion struct {
	ID                string
	TicketID          string
	PredictedCategory TicketCategory
	ArticleIDs        []string
	DraftReply        string
	Confidence        float64
	AutoClosed        bool
	ModelInfo         ModelInfo
	CreatedAt         time.Time
}
