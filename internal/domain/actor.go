package domain

// ActorType differentiates end-users, staff and the system actor.
type ActorType string

const (
	ActorTypeUser   ActorType = "USER"
	ActorTypeStaff  ActorType = "STAFF"
	ActorTypeSystem ActorType = "SYSTEM"
)

// SystemActorID identifies the internal automation actor on thread
// entries and events.
const SystemActorID = "system"

// ActorContext is the resolved identity attached to every operation.
// Authentication happens upstream; the engine receives the actor with
// role and scope already established.
type ActorContext struct {
	ID             string
	Type           ActorType
	Role           StaffRole
	DepartmentIDs  []string
	TeamIDs        []string
	OrganizationID *string
}

// SystemActor returns the actor the escalation monitor and other
// internal automation act as.
func SystemActor() ActorContext {
	return ActorContext{ID: SystemActorID, Type: ActorTypeSystem}
}

// MemberOfDepartment reports whether the actor's department scope
// includes the given department.
func (a ActorContext) MemberOfDepartment(departmentID string) bool {
	for _, id := range a.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}

// MemberOfTeam reports whether the actor belongs to the given team.
func (a ActorContext) MemberOfTeam(teamID string) bool {
	for _, id := range a.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}
