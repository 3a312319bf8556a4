package service_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository/memory"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

func TestDirectoryWritesRequireAdmin(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	agent := f.agentActor()
	_, err := f.directory.CreateDepartment(ctx, agent, service.DepartmentInput{Name: "Shadow"})
	gt.Error(t, err)
	gt.Value(t, util.CodeOf(err)).Equal(util.CodePermissionDenied)

	// Admin staff and the system actor both pass.
	_, err = f.directory.CreateDepartment(ctx, f.adminActor(), service.DepartmentInput{Name: "Facilities"})
	gt.NoError(t, err)
	_, err = f.directory.CreateDepartment(ctx, domain.SystemActor(), service.DepartmentInput{Name: "Legal"})
	gt.NoError(t, err)
}

func TestCreateTeamValidatesDepartment(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	system := domain.SystemActor()

	t.Run("unknown department", func(t *testing.T) {
		_, err := f.directory.CreateTeam(ctx, system, service.TeamInput{DepartmentID: "dept-missing", Name: "Ghost"})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeInvalidTarget)
	})

	t.Run("name required", func(t *testing.T) {
		_, err := f.directory.CreateTeam(ctx, system, service.TeamInput{DepartmentID: f.support.ID, Name: "  "})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})

	t.Run("inactive department", func(t *testing.T) {
		dept, err := f.directory.CreateDepartment(ctx, system, service.DepartmentInput{Name: "Winding Down"})
		gt.NoError(t, err).Required()
		dept.IsActive = false
		gt.NoError(t, f.directory.UpdateDepartment(ctx, system, dept)).Required()

		_, err = f.directory.CreateTeam(ctx, system, service.TeamInput{DepartmentID: dept.ID, Name: "Late"})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeInvalidTarget)
	})
}

func TestCreateStaffMemberTeamImpliesDepartment(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	system := domain.SystemActor()

	t.Run("team fills in the department", func(t *testing.T) {
		staff, err := f.directory.CreateStaffMember(ctx, system, service.StaffInput{
			Name:   "Casey",
			Email:  "casey@example.com",
			Role:   domain.StaffRoleAgent,
			TeamID: &f.team.ID,
		})
		gt.NoError(t, err).Required()
		gt.Value(t, staff.DepartmentID).NotNil()
		gt.Value(t, *staff.DepartmentID).Equal(f.support.ID)
		gt.Bool(t, staff.Active).True()
	})

	t.Run("mismatched department is refused", func(t *testing.T) {
		_, err := f.directory.CreateStaffMember(ctx, system, service.StaffInput{
			Name:         "Drew",
			Email:        "drew@example.com",
			Role:         domain.StaffRoleAgent,
			DepartmentID: &f.billing.ID,
			TeamID:       &f.team.ID,
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})

	t.Run("unknown role is refused", func(t *testing.T) {
		_, err := f.directory.CreateStaffMember(ctx, system, service.StaffInput{
			Name:  "Elliot",
			Email: "elliot@example.com",
			Role:  domain.StaffRole("INTERN"),
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})
}

func TestCreateSLAPolicyRejectsNonPositiveMinutes(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.directory.CreateSLAPolicy(ctx, domain.SystemActor(), service.SLAPolicyInput{
		Name:          "Broken",
		UrgentMinutes: 0,
		HighMinutes:   60,
		MediumMinutes: 60,
		LowMinutes:    60,
	})
	gt.Error(t, err)
	gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
}

func TestSetStaffVacationUnknownStaff(t *testing.T) {
	f := newEngineFixture(t)
	err := f.directory.SetStaffVacation(context.Background(), domain.SystemActor(), "staff-missing", true)
	gt.Error(t, err)
	gt.Value(t, util.CodeOf(err)).Equal(util.CodeNotFound)
}

func TestSeedBaselineRunsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	directory := service.NewDirectoryService(service.DirectoryDependencies{
		Store: store,
		Clock: clock.Fake(testStart),
	})

	policy, err := directory.SeedBaseline(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, policy).NotNil()
	gt.Value(t, policy.Name).Equal("Baseline")

	depts, err := directory.ListDepartments(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, depts).Length(1)
	gt.Value(t, depts[0].DefaultSLAPolicyID).NotNil()
	gt.Value(t, *depts[0].DefaultSLAPolicyID).Equal(policy.ID)

	// A second boot finds the policy and seeds nothing.
	again, err := directory.SeedBaseline(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, again).Nil()

	depts, err = directory.ListDepartments(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, depts).Length(1)
}
