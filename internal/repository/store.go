package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by every repository when the requested row
// does not exist. Postgres implementations translate pgx.ErrNoRows;
// the in-memory store returns it directly.
var ErrNotFound = errors.New("repository: not found")

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// the same repository code runs standalone and inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the engine's repositories behind one handle. WithTx
// runs fn against a store whose repositories share a single
// transaction; returning an error rolls everything back. The ticket
// row, thread advance, entry insert and assignment updates of one
// lifecycle operation always travel through the same WithTx call.
type Store interface {
	Tickets() TicketRepository
	Threads() ThreadRepository
	Sequences() SequenceRepository
	Departments() DepartmentRepository
	Teams() TeamRepository
	Staff() StaffRepository
	Topics() TopicRepository
	SLAPolicies() SLAPolicyRepository
	WithTx(ctx context.Context, fn func(Store) error) error
}

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    Querier
	inTx bool
}

// NewPostgresStore builds the production store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) Tickets() TicketRepository         { return NewTicketRepository(s.q) }
func (s *PostgresStore) Threads() ThreadRepository         { return NewThreadRepository(s.q) }
func (s *PostgresStore) Sequences() SequenceRepository     { return NewSequenceRepository(s.q) }
func (s *PostgresStore) Departments() DepartmentRepository { return NewDepartmentRepository(s.q) }
func (s *PostgresStore) Teams() TeamRepository             { return NewTeamRepository(s.q) }
func (s *PostgresStore) Staff() StaffRepository            { return NewStaffRepository(s.q) }
func (s *PostgresStore) Topics() TopicRepository           { return NewTopicRepository(s.q) }
func (s *PostgresStore) SLAPolicies() SLAPolicyRepository  { return NewSLAPolicyRepository(s.q) }

// WithTx opens a transaction and passes a transactional view of the
// store to fn. Nested calls reuse the surrounding transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txStore := &PostgresStore{pool: s.pool, q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
