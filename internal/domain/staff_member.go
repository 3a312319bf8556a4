package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent    StaffRole = "AGENT"
	StaffRoleTeamLead StaffRole = "TEAM_LEAD"
	StaffRoleAdmin    StaffRole = "ADMIN"
)

// StaffMember models a support agent or administrator. Inactive staff
// are invalid assignment targets; staff on vacation stay valid for
// explicit assignment but are skipped by automatic routing.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	Role         StaffRole
	DepartmentID *string
	TeamID       *string
	Active       bool
	OnVacation   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
