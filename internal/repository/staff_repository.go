package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	Update(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error)
}

// StaffFilter defines query params for staff listing.
type StaffFilter struct {
	Role         *domain.StaffRole
	TeamID       *string
	DepartmentID *string
	Active       *bool
	OnVacation   *bool
	Limit        int
	Offset       int
}

type staffRepository struct {
	q Querier
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(q Querier) StaffRepository {
	return &staffRepository{q: q}
}

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (id, name, email, role, department_id, team_id, active_flag, on_vacation, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := r.q.Exec(ctx, query,
		staff.ID,
		staff.Name,
		staff.Email,
		staff.Role,
		staff.DepartmentID,
		staff.TeamID,
		staff.Active,
		staff.OnVacation,
		staff.CreatedAt,
		staff.UpdatedAt,
	)
	return err
}

func (r *staffRepository) Update(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        UPDATE staff_members
        SET name=$1, email=$2, role=$3, department_id=$4, team_id=$5, active_flag=$6, on_vacation=$7, updated_at=$8
        WHERE id=$9`

	cmd, err := r.q.Exec(ctx, query,
		staff.Name,
		staff.Email,
		staff.Role,
		staff.DepartmentID,
		staff.TeamID,
		staff.Active,
		staff.OnVacation,
		staff.UpdatedAt,
		staff.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	const query = `
        SELECT id, name, email, role, department_id, team_id, active_flag, on_vacation, created_at, updated_at
        FROM staff_members WHERE id=$1`

	var staff domain.StaffMember
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.Role,
		&staff.DepartmentID,
		&staff.TeamID,
		&staff.Active,
		&staff.OnVacation,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &staff, nil
}

func (r *staffRepository) List(ctx context.Context, filter StaffFilter) ([]domain.StaffMember, error) {
	query := `
        SELECT id, name, email, role, department_id, team_id, active_flag, on_vacation, created_at, updated_at
        FROM staff_members`
	args := []any{}
	clauses := []string{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		clauses = append(clauses, fmt.Sprintf("role=$%d", len(args)))
	}
	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		clauses = append(clauses, fmt.Sprintf("team_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if filter.OnVacation != nil {
		args = append(args, *filter.OnVacation)
		clauses = append(clauses, fmt.Sprintf("on_vacation=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffMember
	for rows.Next() {
		var staff domain.StaffMember
		if err := rows.Scan(
			&staff.ID,
			&staff.Name,
			&staff.Email,
			&staff.Role,
			&staff.DepartmentID,
			&staff.TeamID,
			&staff.Active,
			&staff.OnVacation,
			&staff.CreatedAt,
			&staff.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, staff)
	}
	return result, rows.Err()
}
