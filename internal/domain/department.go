package domain

import "time"

// Department represents a high-level organizational unit tickets are
// routed into. Inactive departments are invalid assignment and
// transfer targets.
type Department struct {
	ID                 string
	Name               string
	Description        string
	DefaultSLAPolicyID *string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
