package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TeamRepository manages persistence for teams.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	Update(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.Team, error)
}

type teamRepository struct {
	q Querier
}

// NewTeamRepository constructs repository.
func NewTeamRepository(q Querier) TeamRepository {
	return &teamRepository{q: q}
}

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	const query = `
        INSERT INTO teams (id, department_id, name, description, lead_staff_id, is_active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.q.Exec(ctx, query,
		team.ID,
		team.DepartmentID,
		team.Name,
		team.Description,
		team.LeadStaffID,
		team.IsActive,
		team.CreatedAt,
		team.UpdatedAt,
	)
	return err
}

func (r *teamRepository) Update(ctx context.Context, team *domain.Team) error {
	const query = `
        UPDATE teams SET department_id=$1, name=$2, description=$3, lead_staff_id=$4, is_active=$5, updated_at=$6
        WHERE id=$7`
	cmd, err := r.q.Exec(ctx, query,
		team.DepartmentID,
		team.Name,
		team.Description,
		team.LeadStaffID,
		team.IsActive,
		team.UpdatedAt,
		team.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	const query = `
        SELECT id, department_id, name, description, lead_staff_id, is_active, created_at, updated_at
        FROM teams WHERE id=$1`
	var team domain.Team
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&team.ID,
		&team.DepartmentID,
		&team.Name,
		&team.Description,
		&team.LeadStaffID,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &team, nil
}

func (r *teamRepository) ListActiveByDepartment(ctx context.Context, departmentID string) ([]domain.Team, error) {
	const query = `
        SELECT id, department_id, name, description, lead_staff_id, is_active, created_at, updated_at
        FROM teams WHERE department_id=$1 AND is_active=TRUE`
	rows, err := r.q.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.DepartmentID, &team.Name, &team.Description, &team.LeadStaffID, &team.IsActive, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, team)
	}
	return result, rows.Err()
}
