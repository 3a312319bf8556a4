package repository

import (
	"context"
)

// SequenceRepository hands out ticket numbers. Claim is called inside
// the creating transaction so an aborted create never burns a number
// visible to anyone.
type SequenceRepository interface {
	Claim(ctx context.Context, name string) (value int64, padding int, err error)
}

type sequenceRepository struct {
	q Querier
}

// NewSequenceRepository builds repository.
func NewSequenceRepository(q Querier) SequenceRepository {
	return &sequenceRepository{q: q}
}

func (r *sequenceRepository) Claim(ctx context.Context, name string) (int64, int, error) {
	const query = `
        UPDATE number_sequences SET next = next + increment
        WHERE name=$1
        RETURNING next - increment, padding`
	var value int64
	var padding int
	if err := r.q.QueryRow(ctx, query, name).Scan(&value, &padding); err != nil {
		return 0, 0, mapNoRows(err)
	}
	return value, padding, nil
}
