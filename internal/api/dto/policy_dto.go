package dto

import (
	"time"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// PolicyResponse is the operator view of the triage policy.
type PolicyResponse struct {
	AutoCloseEnabled    bool                              `json:"auto_close_enabled"`
	ConfidenceThreshold float64                           `json:"confidence_threshold"`
	CategoryThresholds  map[domain.TicketCategory]float64 `json:"category_thresholds"`
	SLAHours            int                               `json:"sla_hours"`
	MaxRetries          int                               `json:"max_retries"`
	UpdatedAt           time.Time                         `json:"updated_at"`
}

// PolicyUpdateRequest carries partial policy changes.
type PolicyUpdateRequest struct {
	AutoCloseEnabled    *bool                             `json:"auto_close_enabled"`
	ConfidenceThreshold *float64                          `json:"confidence_threshold"`
	CategoryThresholds  map[domain.TicketCategory]float64 `json:"category_thresholds"`
	SLAHours            *int                              `json:"sla_hours"`
	MaxRetries          *int                              `json:"max_retries"`
}
