package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

type ticketRepo struct {
	store *Store
	inTx  bool
}

func (r *ticketRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *ticketRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	defer r.lock()()
	if _, exists := r.store.data.tickets[ticket.ID]; exists {
		return fmt.Errorf("ticket %s already exists", ticket.ID)
	}
	r.store.data.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	defer r.lock()()
	if _, exists := r.store.data.tickets[ticket.ID]; !exists {
		return repository.ErrNotFound
	}
	r.store.data.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *ticketRepo) Delete(ctx context.Context, id string) error {
	defer r.lock()()
	if _, exists := r.store.data.tickets[id]; !exists {
		return repository.ErrNotFound
	}
	delete(r.store.data.tickets, id)
	delete(r.store.data.threads, id)
	delete(r.store.data.entries, id)
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	defer r.rlock()()
	ticket, ok := r.store.data.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTicket(ticket), nil
}

func (r *ticketRepo) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	defer r.rlock()()
	for _, ticket := range r.store.data.tickets {
		if ticket.Number == number {
			return copyTicket(ticket), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ticketRepo) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]domain.Ticket, error) {
	return r.ListWithFilter(ctx, repository.TicketFilter{
		RequesterID: &requesterID,
		Limit:       limit,
		Offset:      offset,
	})
}

func (r *ticketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	defer r.rlock()()

	var matched []*domain.Ticket
	for _, ticket := range r.store.data.tickets {
		if matchesFilter(ticket, filter) {
			matched = append(matched, ticket)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	result := make([]domain.Ticket, 0, end-offset)
	for _, ticket := range matched[offset:end] {
		result = append(result, *copyTicket(ticket))
	}
	return result, nil
}

func (r *ticketRepo) ListOverdueCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	defer r.rlock()()

	var matched []*domain.Ticket
	for _, ticket := range r.store.data.tickets {
		if ticket.Overdue || ticket.SLADeadline.After(cutoff) {
			continue
		}
		switch ticket.Status {
		case domain.TicketStatusNew, domain.TicketStatusOpen, domain.TicketStatusPending, domain.TicketStatusAssigned:
			matched = append(matched, ticket)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SLADeadline.Before(matched[j].SLADeadline)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]domain.Ticket, 0, len(matched))
	for _, ticket := range matched {
		result = append(result, *copyTicket(ticket))
	}
	return result, nil
}

func matchesFilter(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
		return false
	}
	if filter.DepartmentID != nil && ticket.DepartmentID != *filter.DepartmentID {
		return false
	}
	if filter.TeamID != nil && (ticket.TeamID == nil || *ticket.TeamID != *filter.TeamID) {
		return false
	}
	if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	if len(filter.Sources) > 0 && !containsSource(filter.Sources, ticket.Source) {
		return false
	}
	if filter.Overdue != nil && ticket.Overdue != *filter.Overdue {
		return false
	}
	if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(ticket.Subject), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, p := range list {
		if p == priority {
			return true
		}
	}
	return false
}

func containsSource(list []domain.TicketSource, source domain.TicketSource) bool {
	for _, s := range list {
		if s == source {
			return true
		}
	}
	return false
}
