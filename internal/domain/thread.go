package domain

import "time"

// ThreadEntryType differentiates requester messages, staff responses,
// internal notes and system-recorded transitions.
type ThreadEntryType string

const (
	EntryTypeMessage  ThreadEntryType = "MESSAGE"
	EntryTypeResponse ThreadEntryType = "RESPONSE"
	EntryTypeNote     ThreadEntryType = "NOTE"
	EntryTypeSystem   ThreadEntryType = "SYSTEM"
)

// EntryVisibility controls whether an entry is requester-facing.
type EntryVisibility string

const (
	VisibilityExternal EntryVisibility = "EXTERNAL"
	VisibilityInternal EntryVisibility = "INTERNAL"
)

// Thread is the append-only conversation attached to exactly one ticket.
// NextSeq is the sequence number the next entry will receive; it is
// advanced only inside the transaction that inserts the entry.
type Thread struct {
	ID        string
	TicketID  string
	NextSeq   int64
	CreatedAt time.Time
}

// ThreadEntry is one immutable element of a ticket thread. Seq is
// strictly increasing per thread with no gaps or duplicates.
type ThreadEntry struct {
	ID          string
	ThreadID    string
	TicketID    string
	Seq         int64
	Type        ThreadEntryType
	AuthorType  ActorType
	AuthorID    *string
	Body        string
	Visibility  EntryVisibility
	Attachments []AttachmentReference
	CreatedAt   time.Time
}

// AttachmentReference stores metadata for thread entry attachments.
// Blob storage is external; the engine keeps references only.
type AttachmentReference struct {
	ID         string
	EntryID    string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
