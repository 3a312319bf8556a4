package events

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// EventType enumerates supported event identifiers. Exactly one event
// is published per successful lifecycle operation.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketReplied         EventType = "ticket_replied"
	EventTicketNoteAdded       EventType = "ticket_note_added"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketTransferred     EventType = "ticket_transferred"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketPending         EventType = "ticket_pending"
	EventTicketResolved        EventType = "ticket_resolved"
	EventTicketClosed          EventType = "ticket_closed"
	EventTicketReopened        EventType = "ticket_reopened"
	EventTicketArchived        EventType = "ticket_archived"
	EventTicketUnarchived      EventType = "ticket_unarchived"
	EventTicketDeleted         EventType = "ticket_deleted"
	EventTicketOverdue         EventType = "ticket_overdue"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   string           `json:"id"`
}

// Event represents a domain event emitted after a committed
// transition. Events are immutable and never persisted by the engine.
type Event struct {
	ID           string              `json:"id"`
	Type         EventType           `json:"type"`
	TicketID     string              `json:"ticket_id"`
	TicketNumber string              `json:"ticket_number"`
	Actor        Actor               `json:"actor"`
	BeforeStatus domain.TicketStatus `json:"before_status,omitempty"`
	AfterStatus  domain.TicketStatus `json:"after_status"`
	Timestamp    time.Time           `json:"timestamp"`
	Payload      interface{}         `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	DepartmentID string                `json:"department_id"`
	TopicID      *string               `json:"topic_id,omitempty"`
	Priority     domain.TicketPriority `json:"priority"`
	Source       domain.TicketSource   `json:"source"`
	Subject      string                `json:"subject"`
}

// ThreadEntryPayload describes the entry appended by a reply or note.
type ThreadEntryPayload struct {
	EntryID     string                 `json:"entry_id"`
	Seq         int64                  `json:"seq"`
	EntryType   domain.ThreadEntryType `json:"entry_type"`
	AuthorType  domain.ActorType       `json:"author_type"`
	AuthorID    *string                `json:"author_id,omitempty"`
	BodyPreview string                 `json:"body_preview"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	DepartmentID    string  `json:"department_id"`
	TeamID          *string `json:"team_id,omitempty"`
	AssigneeStaffID *string `json:"assignee_staff_id,omitempty"`
}

// TicketTransferredPayload payload.
type TicketTransferredPayload struct {
	OldDepartmentID string `json:"old_department_id"`
	NewDepartmentID string `json:"new_department_id"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority        domain.TicketPriority `json:"old_priority"`
	NewPriority        domain.TicketPriority `json:"new_priority"`
	DeadlineRecomputed bool                  `json:"deadline_recomputed"`
}

// TicketStatusChangedPayload payload for plain status moves (pend,
// resolve, close, reopen, archive, unarchive).
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketOverduePayload payload.
type TicketOverduePayload struct {
	SLAPolicyID string    `json:"sla_policy_id"`
	SLADeadline time.Time `json:"sla_deadline"`
}

// TicketDeletedPayload payload. Published after the hard removal of
// the ticket and its thread.
type TicketDeletedPayload struct {
	Number         string `json:"number"`
	EntriesRemoved int64  `json:"entries_removed"`
}
