package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// DepartmentRepository manages department persistence.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	Update(ctx context.Context, dept *domain.Department) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	ListActive(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	q Querier
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(q Querier) DepartmentRepository {
	return &departmentRepository{q: q}
}

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	const query = `
        INSERT INTO departments (id, name, description, default_sla_policy_id, is_active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.q.Exec(ctx, query,
		dept.ID,
		dept.Name,
		dept.Description,
		dept.DefaultSLAPolicyID,
		dept.IsActive,
		dept.CreatedAt,
		dept.UpdatedAt,
	)
	return err
}

func (r *departmentRepository) Update(ctx context.Context, dept *domain.Department) error {
	const query = `
        UPDATE departments SET name=$1, description=$2, default_sla_policy_id=$3, is_active=$4, updated_at=$5
        WHERE id=$6`
	cmd, err := r.q.Exec(ctx, query,
		dept.Name,
		dept.Description,
		dept.DefaultSLAPolicyID,
		dept.IsActive,
		dept.UpdatedAt,
		dept.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	const query = `
        SELECT id, name, description, default_sla_policy_id, is_active, created_at, updated_at
        FROM departments WHERE id=$1`
	var dept domain.Department
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&dept.ID,
		&dept.Name,
		&dept.Description,
		&dept.DefaultSLAPolicyID,
		&dept.IsActive,
		&dept.CreatedAt,
		&dept.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &dept, nil
}

func (r *departmentRepository) ListActive(ctx context.Context) ([]domain.Department, error) {
	const query = `
        SELECT id, name, description, default_sla_policy_id, is_active, created_at, updated_at
        FROM departments WHERE is_active = TRUE`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		var dept domain.Department
		if err := rows.Scan(&dept.ID, &dept.Name, &dept.Description, &dept.DefaultSLAPolicyID, &dept.IsActive, &dept.CreatedAt, &dept.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
