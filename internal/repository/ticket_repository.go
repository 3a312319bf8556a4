package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TicketFilter captures staff search parameters.
type TicketFilter struct {
	RequesterID  *string
	DepartmentID *string
	TeamID       *string
	AssigneeID   *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Sources      []domain.TicketSource
	Overdue      *bool
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence. The engine writes
// tickets only through lifecycle transactions.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListOverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	q Querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(q Querier) TicketRepository {
	return &ticketRepository{q: q}
}

const ticketColumns = `id, number, subject, requester_id, requester_org_id, department_id, team_id,
               assignee_staff_id, topic_id, status, priority, source, sla_policy_id, sla_deadline,
               overdue, answered, created_at, updated_at, closed_at, reopened_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, number, subject, requester_id, requester_org_id, department_id, team_id,
            assignee_staff_id, topic_id, status, priority, source, sla_policy_id, sla_deadline,
            overdue, answered, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err := r.q.Exec(ctx, query,
		ticket.ID,
		ticket.Number,
		ticket.Subject,
		ticket.RequesterID,
		ticket.RequesterOrgID,
		ticket.DepartmentID,
		ticket.TeamID,
		ticket.AssigneeID,
		ticket.TopicID,
		ticket.Status,
		ticket.Priority,
		ticket.Source,
		ticket.SLAPolicyID,
		ticket.SLADeadline,
		ticket.Overdue,
		ticket.Answered,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET department_id=$1, team_id=$2, assignee_staff_id=$3, status=$4, priority=$5,
            sla_policy_id=$6, sla_deadline=$7, overdue=$8, answered=$9, updated_at=$10,
            closed_at=$11, reopened_at=$12
        WHERE id=$13`
	cmd, err := r.q.Exec(ctx, query,
		ticket.DepartmentID,
		ticket.TeamID,
		ticket.AssigneeID,
		ticket.Status,
		ticket.Priority,
		ticket.SLAPolicyID,
		ticket.SLADeadline,
		ticket.Overdue,
		ticket.Answered,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ReopenedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.q.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.q.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Subject,
		&ticket.RequesterID,
		&ticket.RequesterOrgID,
		&ticket.DepartmentID,
		&ticket.TeamID,
		&ticket.AssigneeID,
		&ticket.TopicID,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Source,
		&ticket.SLAPolicyID,
		&ticket.SLADeadline,
		&ticket.Overdue,
		&ticket.Answered,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.ReopenedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]domain.Ticket, error) {
	filter := TicketFilter{
		RequesterID: &requesterID,
		Limit:       limit,
		Offset:      offset,
	}
	return r.ListWithFilter(ctx, filter)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		clauses = append(clauses, fmt.Sprintf("team_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_staff_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Sources) > 0 {
		placeholders := make([]string, len(filter.Sources))
		for i, src := range filter.Sources {
			args = append(args, src)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("source IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Overdue != nil {
		args = append(args, *filter.Overdue)
		clauses = append(clauses, fmt.Sprintf("overdue=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		clauses = append(clauses, fmt.Sprintf("LOWER(subject) LIKE $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListOverdueCandidates returns tickets whose deadline has passed but
// whose overdue flag is still clear, oldest deadline first. Closed and
// archived tickets never qualify.
func (r *ticketRepository) ListOverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE overdue = FALSE AND sla_deadline <= $1
          AND status IN ('NEW','OPEN','PENDING','ASSIGNED')
        ORDER BY sla_deadline ASC
        LIMIT $2`, ticketColumns)
	rows, err := r.q.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Number,
			&ticket.Subject,
			&ticket.RequesterID,
			&ticket.RequesterOrgID,
			&ticket.DepartmentID,
			&ticket.TeamID,
			&ticket.AssigneeID,
			&ticket.TopicID,
			&ticket.Status,
			&ticket.Priority,
			&ticket.Source,
			&ticket.SLAPolicyID,
			&ticket.SLADeadline,
			&ticket.Overdue,
			&ticket.Answered,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ClosedAt,
			&ticket.ReopenedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
