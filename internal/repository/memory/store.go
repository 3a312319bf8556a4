package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// Store is the in-memory implementation of repository.Store used by
// tests. Transactions take the store lock for their whole span and
// roll back by restoring a snapshot, so WithTx commits atomically
// exactly like the Postgres implementation.
type Store struct {
	mu   sync.RWMutex
	data *data
}

type data struct {
	tickets     map[string]*domain.Ticket
	threads     map[string]*domain.Thread // keyed by ticket id
	entries     map[string][]*domain.ThreadEntry
	sequences   map[string]*domain.NumberSequence
	departments map[string]*domain.Department
	teams       map[string]*domain.Team
	staff       map[string]*domain.StaffMember
	topics      map[string]*domain.Topic
	slas        map[string]*domain.SLAPolicy
}

// New creates an empty store with the default ticket number sequence
// seeded.
func New() *Store {
	s := &Store{data: newData()}
	s.data.sequences[domain.DefaultSequenceName] = &domain.NumberSequence{
		Name:      domain.DefaultSequenceName,
		Next:      100001,
		Increment: 1,
		Padding:   6,
	}
	return s
}

func newData() *data {
	return &data{
		tickets:     make(map[string]*domain.Ticket),
		threads:     make(map[string]*domain.Thread),
		entries:     make(map[string][]*domain.ThreadEntry),
		sequences:   make(map[string]*domain.NumberSequence),
		departments: make(map[string]*domain.Department),
		teams:       make(map[string]*domain.Team),
		staff:       make(map[string]*domain.StaffMember),
		topics:      make(map[string]*domain.Topic),
		slas:        make(map[string]*domain.SLAPolicy),
	}
}

func (d *data) clone() *data {
	c := newData()
	for id, t := range d.tickets {
		c.tickets[id] = copyTicket(t)
	}
	for id, th := range d.threads {
		c.threads[id] = copyThread(th)
	}
	for id, list := range d.entries {
		copied := make([]*domain.ThreadEntry, len(list))
		for i, e := range list {
			copied[i] = copyEntry(e)
		}
		c.entries[id] = copied
	}
	for name, seq := range d.sequences {
		v := *seq
		c.sequences[name] = &v
	}
	for id, dept := range d.departments {
		v := *dept
		c.departments[id] = &v
	}
	for id, team := range d.teams {
		v := *team
		c.teams[id] = &v
	}
	for id, st := range d.staff {
		v := *st
		c.staff[id] = &v
	}
	for id, topic := range d.topics {
		v := *topic
		c.topics[id] = &v
	}
	for id, sla := range d.slas {
		v := *sla
		c.slas[id] = &v
	}
	return c
}

func (s *Store) Tickets() repository.TicketRepository         { return &ticketRepo{store: s} }
func (s *Store) Threads() repository.ThreadRepository         { return &threadRepo{store: s} }
func (s *Store) Sequences() repository.SequenceRepository     { return &sequenceRepo{store: s} }
func (s *Store) Departments() repository.DepartmentRepository { return &departmentRepo{store: s} }
func (s *Store) Teams() repository.TeamRepository             { return &teamRepo{store: s} }
func (s *Store) Staff() repository.StaffRepository            { return &staffRepo{store: s} }
func (s *Store) Topics() repository.TopicRepository           { return &topicRepo{store: s} }
func (s *Store) SLAPolicies() repository.SLAPolicyRepository  { return &slaRepo{store: s} }

// SeedSequence installs or replaces a number sequence.
func (s *Store) SeedSequence(seq domain.NumberSequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := seq
	s.data.sequences[seq.Name] = &v
}

// WithTx runs fn while holding the store lock. An error restores the
// pre-transaction snapshot.
func (s *Store) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &txStore{store: s}
	if err := fn(tx); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// txStore is the transactional view. Its repositories skip locking
// because the surrounding WithTx holds the store lock.
type txStore struct {
	store *Store
}

func (t *txStore) Tickets() repository.TicketRepository {
	return &ticketRepo{store: t.store, inTx: true}
}

func (t *txStore) Threads() repository.ThreadRepository {
	return &threadRepo{store: t.store, inTx: true}
}

func (t *txStore) Sequences() repository.SequenceRepository {
	return &sequenceRepo{store: t.store, inTx: true}
}

func (t *txStore) Departments() repository.DepartmentRepository {
	return &departmentRepo{store: t.store, inTx: true}
}

func (t *txStore) Teams() repository.TeamRepository {
	return &teamRepo{store: t.store, inTx: true}
}

func (t *txStore) Staff() repository.StaffRepository {
	return &staffRepo{store: t.store, inTx: true}
}

func (t *txStore) Topics() repository.TopicRepository {
	return &topicRepo{store: t.store, inTx: true}
}

func (t *txStore) SLAPolicies() repository.SLAPolicyRepository {
	return &slaRepo{store: t.store, inTx: true}
}

// WithTx nested inside a transaction reuses it.
func (t *txStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(t)
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.RequesterOrgID = copyStringPtr(t.RequesterOrgID)
	c.TeamID = copyStringPtr(t.TeamID)
	c.AssigneeID = copyStringPtr(t.AssigneeID)
	c.TopicID = copyStringPtr(t.TopicID)
	c.ClosedAt = copyTimePtr(t.ClosedAt)
	c.ReopenedAt = copyTimePtr(t.ReopenedAt)
	return &c
}

func copyThread(t *domain.Thread) *domain.Thread {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyEntry(e *domain.ThreadEntry) *domain.ThreadEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.AuthorID = copyStringPtr(e.AuthorID)
	if len(e.Attachments) > 0 {
		c.Attachments = make([]domain.AttachmentReference, len(e.Attachments))
		copy(c.Attachments, e.Attachments)
	}
	return &c
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
