package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// SuggestionRepository stores classification outcomes.
type SuggestionRepository interface {
	Create(ctx context.Context, suggestion *domain.AgentSuggestion) error
	GetByID(ctx context.Context, id string) (*domain.AgentSuggestion, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentSuggestion, error)
}

type suggestionRepository struct {
	pool *pgxpool.Pool
}

// NewSuggestionRepository builds repository.
func NewSuggestionRepository(pool *pgxpool.Pool) SuggestionRepository {
	return &suggestionRepository{pool: pool}
}

func (r *suggestionRepository) Create(ctx context.Context, suggestion *domain.AgentSuggestion) error {
	const query = `
        INSERT INTO agent_suggestions (ticket_id, predicted_category, article_ids, draft_reply,
            confidence, auto_closed, model_provider, model_name, prompt_version, latency_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		suggestion.TicketID,
		suggestion.PredictedCategory,
		suggestion.ArticleIDs,
		suggestion.DraftReply,
		suggestion.Confidence,
		suggestion.AutoClosed,
		suggestion.ModelInfo.Provider,
		suggestion.ModelInfo.Model,
		suggestion.ModelInfo.PromptVersion,
		suggestion.ModelInfo.LatencyMs,
	).Scan(&suggestion.ID, &suggestion.CreatedAt)
}

func (r *suggestionRepository) GetByID(ctx context.Context, id string) (*domain.AgentSuggestion, error) {
	const query = `
        SELECT id, ticket_id, predicted_category, article_ids, draft_reply, confidence,
               auto_closed, model_provider, model_name, prompt_version, latency_ms, created_at
        FROM agent_suggestions WHERE id=$1`
	var s domain.AgentSuggestion
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.TicketID,
		&s.PredictedCategory,
		&s.ArticleIDs,
		&s.DraftReply,
		&s.Confidence,
		&s.AutoClosed,
		&s.ModelInfo.Provider,
		&s.ModelInfo.Model,
		&s.ModelInfo.PromptVersion,
		&s.ModelInfo.LatencyMs,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *suggestionRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentSuggestion, error) {
	const query = `
        SELECT id, ticket_id, predicted_category, article_ids, draft_reply, confidence,
               auto_closed, model_provider, model_name, prompt_version, latency_ms, created_at
        FROM agent_suggestions WHERE ticket_id=$1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AgentSuggestion
	for rows.Next() {
		var s domain.AgentSuggestion
		if err := rows.Scan(
			&s.ID,
			&s.TicketID,
			&s.PredictedCategory,
			&s.ArticleIDs,
			&s.DraftReply,
			&s.Confidence,
			&s.AutoClosed,
			&s.ModelInfo.Provider,
			&s.ModelInfo.Model,
			&s.ModelInfo.PromptVersion,
			&s.ModelInfo.LatencyMs,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
