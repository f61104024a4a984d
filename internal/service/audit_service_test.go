package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/service"
)

type fakeAuditRepo struct {
	entries   []domain.AuditLogEntry
	createErr error
}

func (r *fakeAuditRepo) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) CountByTicket(ctx context.Context, ticketID string) (int, error) {
	entries, _ := r.ListByTicket(ctx, ticketID, 0, 0)
	return len(entries), nil
}

func (r *fakeAuditRepo) ListByTrace(ctx context.Context, traceID string) ([]domain.AuditLogEntry, error) {
	var out []domain.AuditLogEntry
	for _, entry := range r.entries {
		if entry.TraceID == traceID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func TestAuditRecordPersistsTypedMeta(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := service.NewAuditService(repo, zap.NewNop(), nil)

	svc.Record(context.Background(), "ticket-1", "trace-1", domain.ActorSystem, domain.ActionTriageStarted,
		domain.TriageStartedMeta{TicketTitle: "Charged twice", Attempt: 2})

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, "ticket-1", entry.TicketID)
	require.Equal(t, "trace-1", entry.TraceID)
	require.Equal(t, domain.ActorSystem, entry.Actor)
	require.Equal(t, domain.ActionTriageStarted, entry.Action)
	require.JSONEq(t, `{"ticket_title":"Charged twice","attempt":2}`, string(entry.Meta))
}

func TestAuditRecordSwallowsStorageFailures(t *testing.T) {
	repo := &fakeAuditRepo{createErr: errors.New("connection refused")}
	svc := service.NewAuditService(repo, zap.NewNop(), nil)

	require.NotPanics(t, func() {
		svc.Record(context.Background(), "ticket-1", "trace-1", domain.ActorSystem, domain.ActionTriageFailed,
			domain.TriageFailedMeta{Error: "boom", Attempts: 3})
	})
	require.Empty(t, repo.entries)
}

func TestAuditListByTicketReturnsTotal(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := service.NewAuditService(repo, zap.NewNop(), nil)

	svc.Record(context.Background(), "ticket-1", "trace-1", domain.ActorUser, domain.ActionTicketCreated,
		domain.TicketCreatedMeta{UserID: "user-1", Title: "Charged twice"})
	svc.Record(context.Background(), "ticket-1", "trace-1", domain.ActorSystem, domain.ActionTriageStarted,
		domain.TriageStartedMeta{TicketTitle: "Charged twice", Attempt: 0})
	svc.Record(context.Background(), "ticket-2", "trace-2", domain.ActorUser, domain.ActionTicketCreated,
		domain.TicketCreatedMeta{UserID: "user-2", Title: "Broken keyboard"})

	entries, total, err := svc.ListByTicket(context.Background(), "ticket-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 2, total)

	byTrace, err := svc.ListByTrace(context.Background(), "trace-2")
	require.NoError(t, err)
	require.Len(t, byTrace, 1)
	require.Equal(t, "ticket-2", byTrace[0].TicketID)
}
