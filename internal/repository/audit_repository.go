package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// AuditRepository stores append-only audit entries. Entries are never
// updated or deleted.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLogEntry) error
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.AuditLogEntry, error)
	CountByTicket(ctx context.Context, ticketID string) (int, error)
	ListByTrace(ctx context.Context, traceID string) ([]domain.AuditLogEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	const query = `
        INSERT INTO audit_log (ticket_id, trace_id, actor, action, meta)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, ts`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.TraceID,
		entry.Actor,
		entry.Action,
		entry.Meta,
	).Scan(&entry.ID, &entry.Timestamp)
}

func (r *auditRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, trace_id, actor, action, meta, ts
        FROM audit_log WHERE ticket_id=$1 ORDER BY ts ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func (r *auditRepository) CountByTicket(ctx context.Context, ticketID string) (int, error) {
	const query = `SELECT COUNT(*) FROM audit_log WHERE ticket_id=$1`
	var total int
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *auditRepository) ListByTrace(ctx context.Context, traceID string) ([]domain.AuditLogEntry, error) {
	const query = `
        SELECT id, ticket_id, trace_id, actor, action, meta, ts
        FROM audit_log WHERE trace_id=$1 ORDER BY ts ASC`
	rows, err := r.pool.Query(ctx, query, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditLogEntry, error) {
	var result []domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.TraceID,
			&entry.Actor,
			&entry.Action,
			&entry.Meta,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
