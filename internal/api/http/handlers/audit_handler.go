package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-triage/internal/api/dto"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/service"
)

// AuditHandler exposes the audit trail to staff.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: auditService}
}

// ListByTicket GET /audit/tickets/:ticketId.
func (h *AuditHandler) ListByTicket(c *fiber.Ctx) error {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	entries, total, err := h.audit.ListByTicket(c.Context(), c.Params("ticketId"), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuditPageResponse{
		Entries: auditEntries(entries),
		Total:   total,
		Page:    page,
	}})
}

// ListByTrace GET /audit/trace/:traceId.
func (h *AuditHandler) ListByTrace(c *fiber.Ctx) error {
	entries, err := h.audit.ListByTrace(c.Context(), c.Params("traceId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": auditEntries(entries)})
}

func auditEntries(entries []domain.AuditLogEntry) []dto.AuditEntryResponse {
	resp := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.AuditEntryResponse{
			ID:        entry.ID,
			TicketID:  entry.TicketID,
			TraceID:   entry.TraceID,
			Actor:     entry.Actor,
			Action:    entry.Action,
			Meta:      entry.Meta,
			Timestamp: entry.Timestamp,
		})
	}
	return resp
}
