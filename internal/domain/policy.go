package domain

import "time"

// Policy is the operator-mutable triage configuration. A single row exists;
// it is created lazily with defaults on first read.
type Policy struct {
	ID                  string
	AutoCloseEnabled    bool
	ConfidenceThreshold float64
	CategoryThresholds  map[TicketCategory]float64
	SLAHours            int
	MaxRetries          int
	UpdatedAt           time.Time
}

// DefaultPolicy returns the policy applied when none has been configured.
func DefaultPolicy() *Policy {
	return &Policy{
		AutoCloseEnabled:    true,
		ConfidenceThreshold: 0.78,
		CategoryThresholds: map[TicketCategory]float64{
			CategoryBilling:  0.78,
			CategoryTech:     0.85,
			CategoryShipping: 0.75,
			CategoryOther:    0.80,
		},
		SLAHours:   24,
		MaxRetries: 3,
	}
}

// ThresholdFor returns the per-category override when present, falling back
// to the global confidence threshold.
func (p *Policy) ThresholdFor(category TicketCategory) float64 {
	if threshold, ok := p.CategoryThresholds[category]; ok {
		return threshold
	}
	return p.ConfidenceThreshold
}
