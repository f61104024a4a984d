package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// PolicyRepository manages the singleton triage policy row.
type PolicyRepository interface {
	// Get returns the policy, creating the defaults row if none exists.
	Get(ctx context.Context) (*domain.Policy, error)
	Update(ctx context.Context, policy *domain.Policy) error
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository builds repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

func (r *policyRepository) Get(ctx context.Context) (*domain.Policy, error) {
	const query = `
        SELECT id, auto_close_enabled, confidence_threshold, category_thresholds,
               sla_hours, max_retries, updated_at
        FROM triage_policy LIMIT 1`
	policy, err := r.fetch(ctx, query)
	if err == nil {
		return policy, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return r.insertDefaults(ctx)
}

func (r *policyRepository) Update(ctx context.Context, policy *domain.Policy) error {
	const query = `
        UPDATE triage_policy SET auto_close_enabled=$1, confidence_threshold=$2,
            category_thresholds=$3, sla_hours=$4, max_retries=$5, updated_at=NOW()
        WHERE id=$6
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.AutoCloseEnabled,
		policy.ConfidenceThreshold,
		policy.CategoryThresholds,
		policy.SLAHours,
		policy.MaxRetries,
		policy.ID,
	).Scan(&policy.UpdatedAt)
}

func (r *policyRepository) insertDefaults(ctx context.Context) (*domain.Policy, error) {
	policy := domain.DefaultPolicy()
	const query = `
        INSERT INTO triage_policy (auto_close_enabled, confidence_threshold, category_thresholds, sla_hours, max_retries)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		policy.AutoCloseEnabled,
		policy.ConfidenceThreshold,
		policy.CategoryThresholds,
		policy.SLAHours,
		policy.MaxRetries,
	).Scan(&policy.ID, &policy.UpdatedAt); err != nil {
		return nil, err
	}
	return policy, nil
}

func (r *policyRepository) fetch(ctx context.Context, query string) (*domain.Policy, error) {
	var policy domain.Policy
	if err := r.pool.QueryRow(ctx, query).Scan(
		&policy.ID,
		&policy.AutoCloseEnabled,
		&policy.ConfidenceThreshold,
		&policy.CategoryThresholds,
		&policy.SLAHours,
		&policy.MaxRetries,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}
