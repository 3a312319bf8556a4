package domain

import "time"

// SLAPolicy defines per-priority grace periods. The effective deadline
// for a ticket is the anchor timestamp (creation, or the most recent
// reopen) plus the grace period of its current priority.
type SLAPolicy struct {
	ID            string
	Name          string
	UrgentMinutes int
	HighMinutes   int
	MediumMinutes int
	LowMinutes    int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GraceFor returns the grace period for the given priority.
func (p SLAPolicy) GraceFor(priority TicketPriority) time.Duration {
	minutes := p.MediumMinutes
	switch priority {
	case TicketPriorityUrgent:
		minutes = p.UrgentMinutes
	case TicketPriorityHigh:
		minutes = p.HighMinutes
	case TicketPriorityLow:
		minutes = p.LowMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// DeadlineFrom computes the SLA deadline anchored at the given time.
func (p SLAPolicy) DeadlineFrom(anchor time.Time, priority TicketPriority) time.Time {
	return anchor.Add(p.GraceFor(priority))
}
