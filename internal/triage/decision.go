package triage

import (
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
)

// Disposition is the outcome of evaluating a classification against policy.
type Disposition string

const (
	DispositionAutoClose     Disposition = "auto_close"
	DispositionAssignToHuman Disposition = "assign_to_human"
)

// ReasonBelowThreshold explains an assign-to-human decision caused by low
// confidence rather than a disabled auto-close flag.
const ReasonBelowThreshold = "confidence_below_threshold"

// Decision carries the disposition plus the inputs that produced it, for the
// audit trail.
type Decision struct {
	Disposition Disposition
	Threshold   float64
	Confidence  float64
	Reason      string
}

// Decide maps a classification result and the current policy to a ticket
// disposition. Pure: no clock, no stores, no side effects. The threshold
// boundary is inclusive, so confidence equal to the threshold auto-closes.
func Decide(result *classifier.Result, policy *domain.Policy) Decision {
	threshold := policy.ThresholdFor(result.PredictedCategory)
	decision := Decision{
		Threshold:  threshold,
		Confidence: result.Confidence,
	}

	if policy.AutoCloseEnabled && result.Confidence >= threshold {
		decision.Disposition = DispositionAutoClose
		return decision
	}

	decision.Disposition = DispositionAssignToHuman
	if policy.AutoCloseEnabled {
		decision.Reason = ReasonBelowThreshold
	} else {
		decision.Reason = "auto_close_disabled"
	}
	return decision
}
