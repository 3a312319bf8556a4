package memory

import (
	"context"
	"fmt"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

type threadRepo struct {
	store *Store
	inTx  bool
}

func (r *threadRepo) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *threadRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *threadRepo) CreateThread(ctx context.Context, thread *domain.Thread) error {
	defer r.lock()()
	if _, exists := r.store.data.threads[thread.TicketID]; exists {
		return fmt.Errorf("thread for ticket %s already exists", thread.TicketID)
	}
	r.store.data.threads[thread.TicketID] = copyThread(thread)
	return nil
}

func (r *threadRepo) GetByTicketID(ctx context.Context, ticketID string) (*domain.Thread, error) {
	defer r.rlock()()
	thread, ok := r.store.data.threads[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyThread(thread), nil
}

func (r *threadRepo) ClaimNextSeq(ctx context.Context, ticketID string) (int64, error) {
	defer r.lock()()
	thread, ok := r.store.data.threads[ticketID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	seq := thread.NextSeq
	thread.NextSeq++
	return seq, nil
}

func (r *threadRepo) AppendEntry(ctx context.Context, entry *domain.ThreadEntry) error {
	defer r.lock()()
	for i := range entry.Attachments {
		entry.Attachments[i].EntryID = entry.ID
	}
	r.store.data.entries[entry.TicketID] = append(r.store.data.entries[entry.TicketID], copyEntry(entry))
	return nil
}

func (r *threadRepo) ListEntries(ctx context.Context, ticketID string, fromSeq int64, limit int) ([]domain.ThreadEntry, error) {
	defer r.rlock()()
	if limit <= 0 {
		limit = 100
	}

	var result []domain.ThreadEntry
	for _, entry := range r.store.data.entries[ticketID] {
		if entry.Seq < fromSeq {
			continue
		}
		result = append(result, *copyEntry(entry))
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *threadRepo) CountEntries(ctx context.Context, ticketID string) (int64, error) {
	defer r.rlock()()
	return int64(len(r.store.data.entries[ticketID])), nil
}
