package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// ThreadRepository manages ticket threads and their append-only
// entries. ClaimNextSeq and AppendEntry are only called inside the
// lifecycle transaction that owns the ticket, which is what keeps the
// per-thread sequence gapless.
type ThreadRepository interface {
	CreateThread(ctx context.Context, thread *domain.Thread) error
	GetByTicketID(ctx context.Context, ticketID string) (*domain.Thread, error)
	ClaimNextSeq(ctx context.Context, ticketID string) (int64, error)
	AppendEntry(ctx context.Context, entry *domain.ThreadEntry) error
	ListEntries(ctx context.Context, ticketID string, fromSeq int64, limit int) ([]domain.ThreadEntry, error)
	CountEntries(ctx context.Context, ticketID string) (int64, error)
}

type threadRepository struct {
	q Querier
}

// NewThreadRepository builds repository.
func NewThreadRepository(q Querier) ThreadRepository {
	return &threadRepository{q: q}
}

func (r *threadRepository) CreateThread(ctx context.Context, thread *domain.Thread) error {
	const query = `
        INSERT INTO threads (id, ticket_id, next_seq, created_at)
        VALUES ($1,$2,$3,$4)`
	_, err := r.q.Exec(ctx, query, thread.ID, thread.TicketID, thread.NextSeq, thread.CreatedAt)
	return err
}

func (r *threadRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.Thread, error) {
	const query = `
        SELECT id, ticket_id, next_seq, created_at
        FROM threads WHERE ticket_id=$1`
	var thread domain.Thread
	if err := r.q.QueryRow(ctx, query, ticketID).Scan(
		&thread.ID,
		&thread.TicketID,
		&thread.NextSeq,
		&thread.CreatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &thread, nil
}

// ClaimNextSeq atomically advances the thread counter and returns the
// sequence number the caller's entry must carry.
func (r *threadRepository) ClaimNextSeq(ctx context.Context, ticketID string) (int64, error) {
	const query = `
        UPDATE threads SET next_seq = next_seq + 1
        WHERE ticket_id=$1
        RETURNING next_seq - 1`
	var seq int64
	if err := r.q.QueryRow(ctx, query, ticketID).Scan(&seq); err != nil {
		return 0, mapNoRows(err)
	}
	return seq, nil
}

func (r *threadRepository) AppendEntry(ctx context.Context, entry *domain.ThreadEntry) error {
	const query = `
        INSERT INTO thread_entries (id, thread_id, ticket_id, seq, entry_type, author_type, author_id,
            body, visibility, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if _, err := r.q.Exec(ctx, query,
		entry.ID,
		entry.ThreadID,
		entry.TicketID,
		entry.Seq,
		entry.Type,
		entry.AuthorType,
		entry.AuthorID,
		entry.Body,
		entry.Visibility,
		entry.CreatedAt,
	); err != nil {
		return err
	}

	const attachmentQuery = `
        INSERT INTO attachment_references (id, entry_id, storage_key, file_name, mime_type, size_bytes, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for i := range entry.Attachments {
		att := &entry.Attachments[i]
		att.EntryID = entry.ID
		if _, err := r.q.Exec(ctx, attachmentQuery,
			att.ID,
			att.EntryID,
			att.StorageKey,
			att.FileName,
			att.MimeType,
			att.SizeBytes,
			att.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *threadRepository) ListEntries(ctx context.Context, ticketID string, fromSeq int64, limit int) ([]domain.ThreadEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, thread_id, ticket_id, seq, entry_type, author_type, author_id, body, visibility, created_at
        FROM thread_entries
        WHERE ticket_id=$1 AND seq >= $2
        ORDER BY seq ASC
        LIMIT $3`
	rows, err := r.q.Query(ctx, query, ticketID, fromSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ThreadEntry
	var ids []string
	for rows.Next() {
		var entry domain.ThreadEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ThreadID,
			&entry.TicketID,
			&entry.Seq,
			&entry.Type,
			&entry.AuthorType,
			&entry.AuthorID,
			&entry.Body,
			&entry.Visibility,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
		ids = append(ids, entry.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	attachments, err := r.listAttachments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Attachments = attachments[result[i].ID]
	}
	return result, nil
}

func (r *threadRepository) listAttachments(ctx context.Context, entryIDs []string) (map[string][]domain.AttachmentReference, error) {
	const query = `
        SELECT id, entry_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM attachment_references WHERE entry_id = ANY($1)`
	rows, err := r.q.Query(ctx, query, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byEntry := make(map[string][]domain.AttachmentReference)
	for rows.Next() {
		var att domain.AttachmentReference
		if err := rows.Scan(
			&att.ID,
			&att.EntryID,
			&att.StorageKey,
			&att.FileName,
			&att.MimeType,
			&att.SizeBytes,
			&att.CreatedAt,
		); err != nil {
			return nil, err
		}
		byEntry[att.EntryID] = append(byEntry[att.EntryID], att)
	}
	return byEntry, rows.Err()
}

func (r *threadRepository) CountEntries(ctx context.Context, ticketID string) (int64, error) {
	var count int64
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM thread_entries WHERE ticket_id=$1`, ticketID).Scan(&count)
	return count, err
}
