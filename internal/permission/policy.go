package permission

import (
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// Scope restricts where a staff role may apply an operation.
type Scope string

const (
	// ScopeDepartment requires membership in the ticket's department.
	// For transfer it additionally requires membership in the target
	// department. Extended department access granted upstream shows up
	// in ActorContext.DepartmentIDs, so cross-department rights need
	// no separate mechanism here.
	ScopeDepartment Scope = "DEPARTMENT"
	// ScopeAny waives the membership requirement.
	ScopeAny Scope = "ANY"
)

// staffPolicy is the authorization table for staff actors, keyed by
// operation and role. An absent cell denies.
var staffPolicy = map[domain.Operation]map[domain.StaffRole]Scope{
	domain.OpCreate: {
		domain.StaffRoleAgent:    ScopeAny,
		domain.StaffRoleTeamLead: ScopeAny,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpReply: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpNote: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpAssign: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpTransfer: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpSetPriority: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpPend: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpResolve: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpClose: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpReopen: {
		domain.StaffRoleAgent:    ScopeDepartment,
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpArchive: {
		domain.StaffRoleTeamLead: ScopeDepartment,
		domain.StaffRoleAdmin:    ScopeAny,
	},
	domain.OpUnarchive: {
		domain.StaffRoleAdmin: ScopeAny,
	},
	domain.OpDelete: {
		domain.StaffRoleAdmin: ScopeAny,
	},
}

// userOps are the only operations end-users may perform, and only on
// tickets they can see.
var userOps = map[domain.Operation]bool{
	domain.OpCreate: true,
	domain.OpReply:  true,
}

// systemOps are the only operations the system actor is declared for.
// Close and delete are deliberately absent: automation never closes or
// removes tickets.
var systemOps = map[domain.Operation]bool{
	domain.OpMarkOverdue: true,
	domain.OpTransfer:    true,
	domain.OpNote:        true,
}

// Gate evaluates the policy table. It is pure: no storage access, no
// clock, decisions depend only on the actor, the operation, and the
// ticket snapshot.
type Gate struct {
	orgWideVisibility bool
}

// NewGate builds a Gate. When orgWideVisibility is set, end-users may
// reply on any ticket raised by their organization, not just their own.
func NewGate(orgWideVisibility bool) *Gate {
	return &Gate{orgWideVisibility: orgWideVisibility}
}

// Authorize checks whether the actor may perform op. ticket is nil for
// create. targetDepartmentID carries the destination for transfer and
// is empty otherwise.
func (g *Gate) Authorize(actor domain.ActorContext, op domain.Operation, ticket *domain.Ticket, targetDepartmentID string) error {
	switch actor.Type {
	case domain.ActorTypeSystem:
		if !systemOps[op] {
			return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
				"reason": "operation not declared for the system actor",
			})
		}
		return nil
	case domain.ActorTypeUser:
		return g.authorizeUser(actor, op, ticket)
	case domain.ActorTypeStaff:
		return g.authorizeStaff(actor, op, ticket, targetDepartmentID)
	default:
		return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
			"reason": "unknown actor type",
		})
	}
}

func (g *Gate) authorizeUser(actor domain.ActorContext, op domain.Operation, ticket *domain.Ticket) error {
	if !userOps[op] {
		return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
			"reason": "end-users may only create and reply",
		})
	}
	if ticket == nil {
		return nil
	}
	if ticket.RequesterID == actor.ID {
		return nil
	}
	if g.orgWideVisibility && sameOrganization(actor, ticket) {
		return nil
	}
	return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
		"reason":    "ticket belongs to another requester",
		"ticket_id": ticket.ID,
	})
}

func (g *Gate) authorizeStaff(actor domain.ActorContext, op domain.Operation, ticket *domain.Ticket, targetDepartmentID string) error {
	scopes, ok := staffPolicy[op]
	if !ok {
		return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
			"reason": "operation not available to staff",
		})
	}
	scope, ok := scopes[actor.Role]
	if !ok {
		return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
			"reason": "role may not perform this operation",
			"role":   string(actor.Role),
		})
	}
	if scope == ScopeAny || ticket == nil {
		return nil
	}
	if !actor.MemberOfDepartment(ticket.DepartmentID) {
		return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
			"reason":        "not a member of the ticket's department",
			"department_id": ticket.DepartmentID,
		})
	}
	if op == domain.OpTransfer && targetDepartmentID != "" && !actor.MemberOfDepartment(targetDepartmentID) {
		return util.NewPermissionDenied(string(op), actor.ID, map[string]any{
			"reason":        "not a member of the target department",
			"department_id": targetDepartmentID,
		})
	}
	return nil
}

func sameOrganization(actor domain.ActorContext, ticket *domain.Ticket) bool {
	return actor.OrganizationID != nil && ticket.RequesterOrgID != nil &&
		*actor.OrganizationID == *ticket.RequesterOrgID
}
