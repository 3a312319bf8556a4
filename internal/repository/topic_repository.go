package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TopicRepository manages help topic persistence.
type TopicRepository interface {
	Create(ctx context.Context, topic *domain.Topic) error
	GetByID(ctx context.Context, id string) (*domain.Topic, error)
	ListActive(ctx context.Context) ([]domain.Topic, error)
}

type topicRepository struct {
	q Querier
}

// NewTopicRepository builds the repository.
func NewTopicRepository(q Querier) TopicRepository {
	return &topicRepository{q: q}
}

func (r *topicRepository) Create(ctx context.Context, topic *domain.Topic) error {
	const query = `
        INSERT INTO topics (id, name, department_id, sla_policy_id, default_priority, active_flag, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.q.Exec(ctx, query,
		topic.ID,
		topic.Name,
		topic.DepartmentID,
		topic.SLAPolicyID,
		topic.DefaultPriority,
		topic.Active,
		topic.CreatedAt,
		topic.UpdatedAt,
	)
	return err
}

func (r *topicRepository) GetByID(ctx context.Context, id string) (*domain.Topic, error) {
	const query = `
        SELECT id, name, department_id, sla_policy_id, default_priority, active_flag, created_at, updated_at
        FROM topics WHERE id=$1`
	var topic domain.Topic
	if err := r.q.QueryRow(ctx, query, id).Scan(
		&topic.ID,
		&topic.Name,
		&topic.DepartmentID,
		&topic.SLAPolicyID,
		&topic.DefaultPriority,
		&topic.Active,
		&topic.CreatedAt,
		&topic.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &topic, nil
}

func (r *topicRepository) ListActive(ctx context.Context) ([]domain.Topic, error) {
	const query = `
        SELECT id, name, department_id, sla_policy_id, default_priority, active_flag, created_at, updated_at
        FROM topics WHERE active_flag = TRUE`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Topic
	for rows.Next() {
		var topic domain.Topic
		if err := rows.Scan(&topic.ID, &topic.Name, &topic.DepartmentID, &topic.SLAPolicyID, &topic.DefaultPriority, &topic.Active, &topic.CreatedAt, &topic.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, topic)
	}
	return result, rows.Err()
}
