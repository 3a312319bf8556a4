package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "NEW"
	TicketStatusOpen     TicketStatus = "OPEN"
	TicketStatusPending  TicketStatus = "PENDING"
	TicketStatusAssigned TicketStatus = "ASSIGNED"
	TicketStatusResolved TicketStatus = "RESOLVED"
	TicketStatusClosed   TicketStatus = "CLOSED"
	TicketStatusArchived TicketStatus = "ARCHIVED"
)

// KnownStatuses lists every status a ticket may legally carry.
var KnownStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusOpen,
	TicketStatusPending,
	TicketStatusAssigned,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusArchived,
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// TicketSource records which channel a ticket arrived through.
type TicketSource string

const (
	SourceWeb   TicketSource = "WEB"
	SourceEmail TicketSource = "EMAIL"
	SourcePhone TicketSource = "PHONE"
	SourceAPI   TicketSource = "API"
	SourceOther TicketSource = "OTHER"
)

// Ticket is the aggregate for support requests. Status, assignment and
// SLA fields are only ever mutated through the lifecycle service; the
// row survives closure and archival and is removed solely by delete.
type Ticket struct {
	ID             string
	Number         string
	Subject        string
	RequesterID    string
	RequesterOrgID *string
	DepartmentID   string
	TeamID         *string
	AssigneeID     *string
	TopicID        *string
	Status         TicketStatus
	Priority       TicketPriority
	Source         TicketSource
	SLAPolicyID    string
	SLADeadline    time.Time
	Overdue        bool
	Answered       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
	ReopenedAt     *time.Time
}
