package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// DirectoryService manages the routing directory the engine resolves
// against: departments, teams, staff, help topics and SLA policies.
// Mutations are admin-only; the system actor may also write, which is
// how boot-time seeding runs.
type DirectoryService struct {
	store repository.Store
	clk   clock.Clock
}

// DirectoryDependencies bundles collaborators for the directory
// service.
type DirectoryDependencies struct {
	Store repository.Store
	Clock clock.Clock
}

// NewDirectoryService constructs the service.
func NewDirectoryService(deps DirectoryDependencies) *DirectoryService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &DirectoryService{store: deps.Store, clk: clk}
}

// DepartmentInput describes a new or updated department.
type DepartmentInput struct {
	Name               string
	Description        string
	DefaultSLAPolicyID *string
}

// TeamInput describes a new team under a department.
type TeamInput struct {
	DepartmentID string
	Name         string
	Description  string
	LeadStaffID  *string
}

// StaffInput describes a new staff member.
type StaffInput struct {
	Name         string
	Email        string
	Role         domain.StaffRole
	DepartmentID *string
	TeamID       *string
}

// TopicInput describes a new help topic.
type TopicInput struct {
	Name            string
	DepartmentID    string
	SLAPolicyID     *string
	DefaultPriority *domain.TicketPriority
}

// SLAPolicyInput describes a new SLA policy.
type SLAPolicyInput struct {
	Name          string
	UrgentMinutes int
	HighMinutes   int
	MediumMinutes int
	LowMinutes    int
}

func requireDirectoryAdmin(actor domain.ActorContext) error {
	if actor.Type == domain.ActorTypeSystem {
		return nil
	}
	if actor.Type == domain.ActorTypeStaff && actor.Role == domain.StaffRoleAdmin {
		return nil
	}
	return util.NewPermissionDenied("directory-write", actor.ID, map[string]any{
		"reason": "directory changes require the admin role",
	})
}

// CreateDepartment adds a department, active by default.
func (s *DirectoryService) CreateDepartment(ctx context.Context, actor domain.ActorContext, input DepartmentInput) (*domain.Department, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, util.NewValidationError("department name is required", nil)
	}
	now := s.clk.Now()
	dept := &domain.Department{
		ID:                 uuid.NewString(),
		Name:               name,
		Description:        strings.TrimSpace(input.Description),
		DefaultSLAPolicyID: input.DefaultSLAPolicyID,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Departments().Create(ctx, dept); err != nil {
		return nil, err
	}
	return dept, nil
}

// UpdateDepartment saves department metadata and flags.
func (s *DirectoryService) UpdateDepartment(ctx context.Context, actor domain.ActorContext, dept *domain.Department) error {
	if err := requireDirectoryAdmin(actor); err != nil {
		return err
	}
	dept.UpdatedAt = s.clk.Now()
	if err := s.store.Departments().Update(ctx, dept); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return util.NewNotFound("department", map[string]any{"department_id": dept.ID})
		}
		return err
	}
	return nil
}

// ListDepartments returns active departments.
func (s *DirectoryService) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	return s.store.Departments().ListActive(ctx)
}

// CreateTeam adds a team under an active department.
func (s *DirectoryService) CreateTeam(ctx context.Context, actor domain.ActorContext, input TeamInput) (*domain.Team, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	dept, err := s.store.Departments().GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewInvalidTarget("department", input.DepartmentID, "not found")
		}
		return nil, err
	}
	if !dept.IsActive {
		return nil, util.NewInvalidTarget("department", dept.ID, "inactive")
	}
	now := s.clk.Now()
	team := &domain.Team{
		ID:           uuid.NewString(),
		DepartmentID: dept.ID,
		Name:         strings.TrimSpace(input.Name),
		Description:  strings.TrimSpace(input.Description),
		LeadStaffID:  input.LeadStaffID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if team.Name == "" {
		return nil, util.NewValidationError("team name is required", nil)
	}
	if err := s.store.Teams().Create(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// ListTeams returns active teams for a department.
func (s *DirectoryService) ListTeams(ctx context.Context, departmentID string) ([]domain.Team, error) {
	return s.store.Teams().ListActiveByDepartment(ctx, departmentID)
}

// CreateStaffMember adds a staff account. A team implies the team's
// department; an explicit department must match it.
func (s *DirectoryService) CreateStaffMember(ctx context.Context, actor domain.ActorContext, input StaffInput) (*domain.StaffMember, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" || email == "" {
		return nil, util.NewValidationError("staff name and email are required", nil)
	}
	switch input.Role {
	case domain.StaffRoleAgent, domain.StaffRoleTeamLead, domain.StaffRoleAdmin:
	default:
		return nil, util.NewValidationError("unknown staff role", map[string]any{"role": string(input.Role)})
	}

	departmentID := input.DepartmentID
	if input.TeamID != nil && *input.TeamID != "" {
		team, err := s.store.Teams().GetByID(ctx, *input.TeamID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, util.NewInvalidTarget("team", *input.TeamID, "not found")
			}
			return nil, err
		}
		if !team.IsActive {
			return nil, util.NewInvalidTarget("team", team.ID, "inactive")
		}
		if departmentID != nil && *departmentID != team.DepartmentID {
			return nil, util.NewValidationError("team does not belong to the given department", map[string]any{
				"team_id":       team.ID,
				"department_id": *departmentID,
			})
		}
		departmentID = &team.DepartmentID
	}

	now := s.clk.Now()
	staff := &domain.StaffMember{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         input.Role,
		DepartmentID: departmentID,
		TeamID:       input.TeamID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Staff().Create(ctx, staff); err != nil {
		return nil, err
	}
	return staff, nil
}

// SetStaffVacation flips the vacation flag. Vacationing staff are
// skipped by automatic assignment but stay valid explicit targets.
func (s *DirectoryService) SetStaffVacation(ctx context.Context, actor domain.ActorContext, staffID string, onVacation bool) error {
	if err := requireDirectoryAdmin(actor); err != nil {
		return err
	}
	staff, err := s.store.Staff().GetByID(ctx, staffID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return util.NewNotFound("staff", map[string]any{"staff_id": staffID})
		}
		return err
	}
	staff.OnVacation = onVacation
	staff.UpdatedAt = s.clk.Now()
	return s.store.Staff().Update(ctx, staff)
}

// ListStaffMembers lists staff with filters.
func (s *DirectoryService) ListStaffMembers(ctx context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	return s.store.Staff().List(ctx, filter)
}

// CreateTopic adds a help topic routing into an active department.
func (s *DirectoryService) CreateTopic(ctx context.Context, actor domain.ActorContext, input TopicInput) (*domain.Topic, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	dept, err := s.store.Departments().GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewInvalidTarget("department", input.DepartmentID, "not found")
		}
		return nil, err
	}
	if !dept.IsActive {
		return nil, util.NewInvalidTarget("department", dept.ID, "inactive")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, util.NewValidationError("topic name is required", nil)
	}
	now := s.clk.Now()
	topic := &domain.Topic{
		ID:              uuid.NewString(),
		Name:            name,
		DepartmentID:    dept.ID,
		SLAPolicyID:     input.SLAPolicyID,
		DefaultPriority: input.DefaultPriority,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Topics().Create(ctx, topic); err != nil {
		return nil, err
	}
	return topic, nil
}

// ListTopics returns active help topics.
func (s *DirectoryService) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	return s.store.Topics().ListActive(ctx)
}

// CreateSLAPolicy adds an SLA policy with per-priority grace minutes.
func (s *DirectoryService) CreateSLAPolicy(ctx context.Context, actor domain.ActorContext, input SLAPolicyInput) (*domain.SLAPolicy, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, util.NewValidationError("policy name is required", nil)
	}
	if input.UrgentMinutes <= 0 || input.HighMinutes <= 0 || input.MediumMinutes <= 0 || input.LowMinutes <= 0 {
		return nil, util.NewValidationError("grace minutes must be positive for every priority", nil)
	}
	now := s.clk.Now()
	policy := &domain.SLAPolicy{
		ID:            uuid.NewString(),
		Name:          name,
		UrgentMinutes: input.UrgentMinutes,
		HighMinutes:   input.HighMinutes,
		MediumMinutes: input.MediumMinutes,
		LowMinutes:    input.LowMinutes,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.SLAPolicies().Create(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// ListSLAPolicies returns active SLA policies.
func (s *DirectoryService) ListSLAPolicies(ctx context.Context) ([]domain.SLAPolicy, error) {
	return s.store.SLAPolicies().ListActive(ctx)
}

// SeedBaseline provisions a starter SLA policy and department on an
// empty directory so ticket creation can resolve routing from the
// first boot. It is a no-op once any active policy exists. Returns
// the baseline policy, or nil when nothing was seeded.
func (s *DirectoryService) SeedBaseline(ctx context.Context) (*domain.SLAPolicy, error) {
	existing, err := s.store.SLAPolicies().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}

	system := domain.SystemActor()
	policy, err := s.CreateSLAPolicy(ctx, system, SLAPolicyInput{
		Name:          "Baseline",
		UrgentMinutes: 60,
		HighMinutes:   4 * 60,
		MediumMinutes: 24 * 60,
		LowMinutes:    72 * 60,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.CreateDepartment(ctx, system, DepartmentInput{
		Name:               "General Support",
		Description:        "Default queue for unrouted tickets",
		DefaultSLAPolicyID: &policy.ID,
	}); err != nil {
		return nil, err
	}
	return policy, nil
}
