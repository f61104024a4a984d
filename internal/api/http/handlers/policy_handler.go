package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-triage/internal/api/dto"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/service"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// PolicyHandler exposes the operator-facing triage policy endpoints.
type PolicyHandler struct {
	policies *service.PolicyService
}

// NewPolicyHandler constructs handler.
func NewPolicyHandler(policyService *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policyService}
}

// Get GET /config.
func (h *PolicyHandler) Get(c *fiber.Ctx) error {
	policy, err := h.policies.Get(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// Update PUT /config.
func (h *PolicyHandler) Update(c *fiber.Ctx) error {
	var req dto.PolicyUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.policies.Update(c.Context(), service.PolicyUpdateInput{
		AutoCloseEnabled:    req.AutoCloseEnabled,
		ConfidenceThreshold: req.ConfidenceThreshold,
		CategoryThresholds:  req.CategoryThresholds,
		SLAHours:            req.SLAHours,
		MaxRetries:          req.MaxRetries,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

func policyResponse(policy *domain.Policy) dto.PolicyResponse {
	return dto.PolicyResponse{
		AutoCloseEnabled:    policy.AutoCloseEnabled,
		ConfidenceThreshold: policy.ConfidenceThreshold,
		CategoryThresholds:  policy.CategoryThresholds,
		SLAHours:            policy.SLAHours,
		MaxRetries:          policy.MaxRetries,
		UpdatedAt:           policy.UpdatedAt,
	}
}
