package service

import (
	"context"
	"sync"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// PolicyService exposes the operator-mutable triage policy. Reads go to the
// store every time so workers always decide on fresh thresholds; operator
// updates are serialized.
type PolicyService struct {
	repo    repository.PolicyRepository
	writeMu sync.Mutex
}

// PolicyUpdateInput carries partial policy changes. Nil fields are left as
// stored.
type PolicyUpdateInput struct {
	AutoCloseEnabled    *bool
	ConfidenceThreshold *float64
	CategoryThresholds  map[domain.TicketCategory]float64
	SLAHours            *int
	MaxRetries          *int
}

// NewPolicyService constructs the service.
func NewPolicyService(repo repository.PolicyRepository) *PolicyService {
	return &PolicyService{repo: repo}
}

// Get returns the current policy, lazily creating the defaults row.
func (s *PolicyService) Get(ctx context.Context) (*domain.Policy, error) {
	policy, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return policy, nil
}

// Update applies operator changes after validating bounds.
func (s *PolicyService) Update(ctx context.Context, input PolicyUpdateInput) (*domain.Policy, error) {
	if input.ConfidenceThreshold != nil && !validThreshold(*input.ConfidenceThreshold) {
		return nil, apperrors.NewValidationError("confidence_threshold must be within [0,1]", nil)
	}
	for category, threshold := range input.CategoryThresholds {
		if !domain.ValidCategory(category) {
			return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": category})
		}
		if !validThreshold(threshold) {
			return nil, apperrors.NewValidationError("category threshold must be within [0,1]", map[string]any{"category": category})
		}
	}
	if input.SLAHours != nil && *input.SLAHours < 1 {
		return nil, apperrors.NewValidationError("sla_hours must be at least 1", nil)
	}
	if input.MaxRetries != nil && *input.MaxRetries < 1 {
		return nil, apperrors.NewValidationError("max_retries must be at least 1", nil)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	policy, err := s.repo.Get(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	if input.AutoCloseEnabled != nil {
		policy.AutoCloseEnabled = *input.AutoCloseEnabled
	}
	if input.ConfidenceThreshold != nil {
		policy.ConfidenceThreshold = *input.ConfidenceThreshold
	}
	for category, threshold := range input.CategoryThresholds {
		if policy.CategoryThresholds == nil {
			policy.CategoryThresholds = make(map[domain.TicketCategory]float64)
		}
		policy.CategoryThresholds[category] = threshold
	}
	if input.SLAHours != nil {
		policy.SLAHours = *input.SLAHours
	}
	if input.MaxRetries != nil {
		policy.MaxRetries = *input.MaxRetries
	}

	if err := s.repo.Update(ctx, policy); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	return policy, nil
}

func validThreshold(v float64) bool {
	return v >= 0 && v <= 1
}
