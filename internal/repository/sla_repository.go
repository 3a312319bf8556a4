package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// SLAPolicyRepository manages SLA policy persistence.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	ListActive(ctx context.Context) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	q Querier
}

// NewSLAPolicyRepository builds the repository.
func NewSLAPolicyRepository(q Querier) SLAPolicyRepository {
	return &slaPolicyRepository{q: q}
}

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (id, name, urgent_minutes, high_minutes, medium_minutes, low_minutes, active_flag, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.q.Exec(ctx, query,
		policy.ID,
		policy.Name,
		policy.UrgentMinutes,
		policy.HighMinutes,
		policy.MediumMinutes,
		policy.LowMinutes,
		policy.Active,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	return err
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, urgent_minutes, high_minutes, medium_minutes, low_minutes, active_flag, created_at, updated_at
        FROM sla_policies WHERE id=$1`
	var policy domain.SLAPolicy
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&policy.ID,
		&policy.Name,
		&policy.UrgentMinutes,
		&policy.HighMinutes,
		&policy.MediumMinutes,
		&policy.LowMinutes,
		&policy.Active,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &policy, nil
}

func (r *slaPolicyRepository) ListActive(ctx context.Context) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, urgent_minutes, high_minutes, medium_minutes, low_minutes, active_flag, created_at, updated_at
        FROM sla_policies WHERE active_flag = TRUE`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := rows.Scan(&policy.ID, &policy.Name, &policy.UrgentMinutes, &policy.HighMinutes, &policy.MediumMinutes, &policy.LowMinutes, &policy.Active, &policy.CreatedAt, &policy.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}
