package triage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/triage"
)

func TestDecideAboveThreshold(t *testing.T) {
	policy := domain.DefaultPolicy()
	result := &classifier.Result{PredictedCategory: domain.CategoryBilling, Confidence: 0.92}

	decision := triage.Decide(result, policy)

	require.Equal(t, triage.DispositionAutoClose, decision.Disposition)
	require.InDelta(t, 0.78, decision.Threshold, 1e-9)
	require.InDelta(t, 0.92, decision.Confidence, 1e-9)
	require.Empty(t, decision.Reason)
}

func TestDecideBelowThreshold(t *testing.T) {
	policy := domain.DefaultPolicy()
	result := &classifier.Result{PredictedCategory: domain.CategoryBilling, Confidence: 0.60}

	decision := triage.Decide(result, policy)

	require.Equal(t, triage.DispositionAssignToHuman, decision.Disposition)
	require.Equal(t, triage.ReasonBelowThreshold, decision.Reason)
}

func TestDecideBoundaryIsInclusive(t *testing.T) {
	policy := domain.DefaultPolicy()
	result := &classifier.Result{PredictedCategory: domain.CategoryShipping, Confidence: 0.75}

	decision := triage.Decide(result, policy)

	require.Equal(t, triage.DispositionAutoClose, decision.Disposition)
}

func TestDecideCategoryOverrideBeatsGlobal(t *testing.T) {
	policy := domain.DefaultPolicy()
	policy.ConfidenceThreshold = 0.80
	// tech keeps its stricter override.
	result := &classifier.Result{PredictedCategory: domain.CategoryTech, Confidence: 0.82}

	decision := triage.Decide(result, policy)

	require.Equal(t, triage.DispositionAssignToHuman, decision.Disposition)
	require.InDelta(t, 0.85, decision.Threshold, 1e-9)
	require.Equal(t, triage.ReasonBelowThreshold, decision.Reason)
}

func TestDecideAutoCloseDisabled(t *testing.T) {
	policy := domain.DefaultPolicy()
	policy.AutoCloseEnabled = false
	result := &classifier.Result{PredictedCategory: domain.CategoryBilling, Confidence: 0.99}

	decision := triage.Decide(result, policy)

	require.Equal(t, triage.DispositionAssignToHuman, decision.Disposition)
	require.Equal(t, "auto_close_disabled", decision.Reason)
}
