package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// RoutingService resolves where tickets land: the department, the SLA
// policy and the effective priority on creation, and the concrete
// department/team/assignee for assignment and transfer targets. It
// only reads; all writes stay with the lifecycle service.
type RoutingService struct {
	store  repository.Store
	engine config.EngineConfig
	logger *zap.Logger
}

// RoutingDependencies bundles collaborators for the routing service.
type RoutingDependencies struct {
	Store  repository.Store
	Engine config.EngineConfig
	Logger *zap.Logger
}

// NewRoutingService constructs the service.
func NewRoutingService(deps RoutingDependencies) *RoutingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{
		store:  deps.Store,
		engine: deps.Engine,
		logger: logger,
	}
}

// Resolution is the routing outcome for a new ticket.
type Resolution struct {
	DepartmentID string
	TopicID      *string
	Priority     domain.TicketPriority
	Policy       *domain.SLAPolicy
}

// AssignmentTarget names where an assign operation points. Department,
// team and staff may be combined; a department alone routes the ticket
// back to the departmental queue. AutoPickStaff asks the engine to
// choose an available member of the targeted team.
type AssignmentTarget struct {
	DepartmentID  *string
	TeamID        *string
	StaffID       *string
	AutoPickStaff bool
}

// ResolvedAssignment is a validated assignment ready to be written.
type ResolvedAssignment struct {
	DepartmentID string
	TeamID       *string
	AssigneeID   *string
}

// ResolveForCreate routes a new ticket. A topic pins the department
// and may contribute a default priority; otherwise the caller names
// the department directly. The SLA policy is the first active one in
// the chain topic policy, department default, configured default.
func (s *RoutingService) ResolveForCreate(ctx context.Context, topicID, departmentID *string, requested domain.TicketPriority) (*Resolution, error) {
	res := &Resolution{Priority: requested}
	var topicPolicyID *string

	switch {
	case topicID != nil:
		topic, err := s.store.Topics().GetByID(ctx, *topicID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, util.NewInvalidTarget("topic", *topicID, "not found")
			}
			return nil, err
		}
		if !topic.Active {
			return nil, util.NewInvalidTarget("topic", topic.ID, "inactive")
		}
		res.TopicID = &topic.ID
		res.DepartmentID = topic.DepartmentID
		topicPolicyID = topic.SLAPolicyID
		if res.Priority == "" && topic.DefaultPriority != nil {
			res.Priority = *topic.DefaultPriority
		}
	case departmentID != nil:
		res.DepartmentID = *departmentID
	default:
		return nil, util.NewValidationError("either topic_id or department_id is required", nil)
	}

	dept, err := s.departmentTarget(ctx, res.DepartmentID)
	if err != nil {
		return nil, err
	}
	if res.Priority == "" {
		res.Priority = domain.TicketPriorityMedium
	}

	policy, err := s.resolvePolicy(ctx, topicPolicyID, dept.DefaultSLAPolicyID)
	if err != nil {
		return nil, err
	}
	res.Policy = policy
	return res, nil
}

// resolvePolicy returns the first active policy in the candidate
// chain, finishing with the configured engine default. Missing or
// inactive links fall through to the next source.
func (s *RoutingService) resolvePolicy(ctx context.Context, candidates ...*string) (*domain.SLAPolicy, error) {
	if s.engine.DefaultSLAPolicyID != "" {
		fallback := s.engine.DefaultSLAPolicyID
		candidates = append(candidates, &fallback)
	}
	for _, id := range candidates {
		if id == nil || *id == "" {
			continue
		}
		policy, err := s.lookupActivePolicy(ctx, *id)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			return policy, nil
		}
	}
	return nil, util.NewValidationError("no active SLA policy could be resolved", nil)
}

func (s *RoutingService) lookupActivePolicy(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	policy, err := s.store.SLAPolicies().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("referenced SLA policy missing, falling through", zap.String("sla_policy_id", id))
			return nil, nil
		}
		return nil, err
	}
	if !policy.Active {
		s.logger.Debug("referenced SLA policy inactive, falling through", zap.String("sla_policy_id", id))
		return nil, nil
	}
	return policy, nil
}

// ResolveAssignment validates an assignment target against the
// directory. Explicit teams must belong to the effective department; a
// staff-only target keeps the ticket's current team; a department
// alone clears team and assignee.
func (s *RoutingService) ResolveAssignment(ctx context.Context, ticket *domain.Ticket, target AssignmentTarget) (*ResolvedAssignment, error) {
	if target.DepartmentID == nil && target.TeamID == nil && target.StaffID == nil {
		return nil, util.NewValidationError("assignment target requires a department, team or staff id", nil)
	}
	if target.AutoPickStaff && target.TeamID == nil {
		return nil, util.NewValidationError("auto-pick requires a team target", nil)
	}

	res := &ResolvedAssignment{DepartmentID: ticket.DepartmentID}
	if target.DepartmentID != nil {
		dept, err := s.departmentTarget(ctx, *target.DepartmentID)
		if err != nil {
			return nil, err
		}
		res.DepartmentID = dept.ID
	}
	deptChanged := res.DepartmentID != ticket.DepartmentID

	switch {
	case target.TeamID != nil:
		team, err := s.teamTarget(ctx, *target.TeamID, res.DepartmentID)
		if err != nil {
			return nil, err
		}
		res.TeamID = &team.ID
	case target.StaffID != nil && !deptChanged:
		res.TeamID = ticket.TeamID
	}

	switch {
	case target.StaffID != nil:
		staff, err := s.staffTarget(ctx, *target.StaffID, res.DepartmentID)
		if err != nil {
			return nil, err
		}
		res.AssigneeID = &staff.ID
	case target.AutoPickStaff:
		member, err := s.pickTeamMember(ctx, *res.TeamID, ticket.ID)
		if err != nil {
			return nil, err
		}
		res.AssigneeID = &member.ID
	}
	return res, nil
}

func (s *RoutingService) departmentTarget(ctx context.Context, id string) (*domain.Department, error) {
	dept, err := s.store.Departments().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewInvalidTarget("department", id, "not found")
		}
		return nil, err
	}
	if !dept.IsActive {
		return nil, util.NewInvalidTarget("department", id, "inactive")
	}
	return dept, nil
}

func (s *RoutingService) teamTarget(ctx context.Context, id, departmentID string) (*domain.Team, error) {
	team, err := s.store.Teams().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewInvalidTarget("team", id, "not found")
		}
		return nil, err
	}
	if !team.IsActive {
		return nil, util.NewInvalidTarget("team", id, "inactive")
	}
	if team.DepartmentID != departmentID {
		return nil, util.NewInvalidTarget("team", id, "not part of the ticket's department")
	}
	return team, nil
}

// staffTarget validates an explicit assignee. Vacationing staff remain
// valid here; only automatic picking skips them.
func (s *RoutingService) staffTarget(ctx context.Context, id, departmentID string) (*domain.StaffMember, error) {
	staff, err := s.store.Staff().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewInvalidTarget("staff", id, "not found")
		}
		return nil, err
	}
	if !staff.Active {
		return nil, util.NewInvalidTarget("staff", id, "inactive")
	}
	if staff.DepartmentID != nil && *staff.DepartmentID != departmentID {
		return nil, util.NewInvalidTarget("staff", id, "outside the ticket's department")
	}
	return staff, nil
}

// pickTeamMember chooses an active, non-vacationing member of the
// team. The pick is stable per ticket so retries land on the same
// member.
func (s *RoutingService) pickTeamMember(ctx context.Context, teamID, ticketID string) (*domain.StaffMember, error) {
	active := true
	members, err := s.store.Staff().List(ctx, repository.StaffFilter{
		TeamID: &teamID,
		Active: &active,
		Limit:  500,
	})
	if err != nil {
		return nil, err
	}
	var eligible []domain.StaffMember
	for _, member := range members {
		if !member.OnVacation {
			eligible = append(eligible, member)
		}
	}
	if len(eligible) == 0 {
		return nil, util.NewInvalidTarget("team", teamID, "no available members")
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	pick := eligible[stableIndex(ticketID, len(eligible))]
	return &pick, nil
}

func stableIndex(key string, length int) int {
	if length <= 1 {
		return 0
	}
	sum := 0
	for _, ch := range key {
		sum += int(ch)
	}
	return sum % length
}
