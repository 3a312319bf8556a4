package domain

import "time"

// Team represents a sub-group under a department. Assigning a ticket
// to a team requires the team to be active and to belong to the
// ticket's department.
type Team struct {
	ID           string
	DepartmentID string
	Name         string
	Description  string
	LeadStaffID  *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
