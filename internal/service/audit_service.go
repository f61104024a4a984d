package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/repository"
)

// AuditService writes and reads the append-only audit trail. Writes are
// best-effort: a storage failure is logged and counted, never surfaced, so
// the triage pipeline can proceed on an audit outage. The ticket's own
// transition stands even when its audit entry is lost.
type AuditService struct {
	repo    repository.AuditRepository
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAuditService constructs the service.
func NewAuditService(repo repository.AuditRepository, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	return &AuditService{repo: repo, logger: logger, metrics: metrics}
}

// Record appends one audit entry. meta must be one of the typed payloads in
// the domain package.
func (s *AuditService) Record(ctx context.Context, ticketID, traceID string, actor domain.AuditActor, action domain.AuditAction, meta any) {
	entry := &domain.AuditLogEntry{
		TicketID: ticketID,
		TraceID:  traceID,
		Actor:    actor,
		Action:   action,
		Meta:     domain.MarshalMeta(meta),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.metrics.AuditWriteFailed()
		s.logger.Error("audit write failed",
			zap.String("ticket_id", ticketID),
			zap.String("trace_id", traceID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// ListByTicket returns a ticket's entries in timestamp order, with the total
// count for pagination.
func (s *AuditService) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.AuditLogEntry, int, error) {
	entries, err := s.repo.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByTicket(ctx, ticketID)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListByTrace reconstructs the causal narrative of one triage attempt.
func (s *AuditService) ListByTrace(ctx context.Context, traceID string) ([]domain.AuditLogEntry, error) {
	return s.repo.ListByTrace(ctx, traceID)
}
