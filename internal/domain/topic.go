package domain

import "time"

// Topic is a help topic requesters pick at creation time. It routes the
// ticket to a department and optionally pins an SLA policy and a
// default priority.
type Topic struct {
	ID              string
	Name            string
	DepartmentID    string
	SLAPolicyID     *string
	DefaultPriority *TicketPriority
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
