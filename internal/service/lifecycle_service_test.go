package service_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/permission"
	"github.com/spec-kit/helpdesk-engine/internal/repository/memory"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

var testStart = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// engineFixture wires a lifecycle service against the in-memory store
// with a seeded directory: one SLA policy, two departments, one team
// and one agent under the support department.
type engineFixture struct {
	t         *testing.T
	store     *memory.Store
	clk       *clock.FakeClock
	bus       *events.Bus
	metrics   *observability.Metrics
	lifecycle *service.LifecycleService
	routing   *service.RoutingService
	directory *service.DirectoryService

	policy  *domain.SLAPolicy
	support *domain.Department
	billing *domain.Department
	team    *domain.Team
	agent   *domain.StaffMember
}

func newEngineFixture(t *testing.T) *engineFixture {
	return newEngineWith(t, config.EngineConfig{})
}

func newEngineWith(t *testing.T, engineCfg config.EngineConfig) *engineFixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	clk := clock.Fake(testStart)
	bus := events.NewBus(64, events.DropOldest, zap.NewNop())
	metrics := observability.NewMetrics()

	directory := service.NewDirectoryService(service.DirectoryDependencies{Store: store, Clock: clk})
	system := domain.SystemActor()

	policy, err := directory.CreateSLAPolicy(ctx, system, service.SLAPolicyInput{
		Name:          "Standard",
		UrgentMinutes: 60,
		HighMinutes:   4 * 60,
		MediumMinutes: 24 * 60,
		LowMinutes:    72 * 60,
	})
	gt.NoError(t, err).Required()

	support, err := directory.CreateDepartment(ctx, system, service.DepartmentInput{
		Name:               "Support",
		DefaultSLAPolicyID: &policy.ID,
	})
	gt.NoError(t, err).Required()

	billing, err := directory.CreateDepartment(ctx, system, service.DepartmentInput{
		Name:               "Billing",
		DefaultSLAPolicyID: &policy.ID,
	})
	gt.NoError(t, err).Required()

	team, err := directory.CreateTeam(ctx, system, service.TeamInput{
		DepartmentID: support.ID,
		Name:         "Tier One",
	})
	gt.NoError(t, err).Required()

	agent, err := directory.CreateStaffMember(ctx, system, service.StaffInput{
		Name:   "Avery Agent",
		Email:  "avery@example.com",
		Role:   domain.StaffRoleAgent,
		TeamID: &team.ID,
	})
	gt.NoError(t, err).Required()

	routing := service.NewRoutingService(service.RoutingDependencies{
		Store:  store,
		Engine: engineCfg,
		Logger: zap.NewNop(),
	})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store:   store,
		Routing: routing,
		Gate:    permission.NewGate(engineCfg.OrgWideVisibility),
		Bus:     bus,
		Clock:   clk,
		Logger:  zap.NewNop(),
		Metrics: metrics,
		Engine:  engineCfg,
	})

	return &engineFixture{
		t:         t,
		store:     store,
		clk:       clk,
		bus:       bus,
		metrics:   metrics,
		lifecycle: lifecycle,
		routing:   routing,
		directory: directory,
		policy:    policy,
		support:   support,
		billing:   billing,
		team:      team,
		agent:     agent,
	}
}

func (f *engineFixture) userActor() domain.ActorContext {
	return domain.ActorContext{ID: "user-1", Type: domain.ActorTypeUser}
}

func (f *engineFixture) agentActor() domain.ActorContext {
	return domain.ActorContext{
		ID:            f.agent.ID,
		Type:          domain.ActorTypeStaff,
		Role:          domain.StaffRoleAgent,
		DepartmentIDs: []string{f.support.ID},
		TeamIDs:       []string{f.team.ID},
	}
}

func (f *engineFixture) leadActor() domain.ActorContext {
	return domain.ActorContext{
		ID:            "staff-lead",
		Type:          domain.ActorTypeStaff,
		Role:          domain.StaffRoleTeamLead,
		DepartmentIDs: []string{f.support.ID, f.billing.ID},
	}
}

func (f *engineFixture) adminActor() domain.ActorContext {
	return domain.ActorContext{ID: "staff-admin", Type: domain.ActorTypeStaff, Role: domain.StaffRoleAdmin}
}

func (f *engineFixture) createTicket(priority domain.TicketPriority) *domain.Ticket {
	f.t.Helper()
	ticket, err := f.lifecycle.CreateTicket(context.Background(), f.userActor(), service.CreateTicketInput{
		Subject:      "printer on fire",
		Body:         "it prints, and it also burns",
		DepartmentID: &f.support.ID,
		Priority:     priority,
	})
	gt.NoError(f.t, err).Required()
	return ticket
}

// drainEvents empties the buffered subscription channel. Publishes are
// synchronous, so everything emitted before the call is collected.
func drainEvents(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.C():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCreateTicketOpensNewWithRoutingDefaults(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sub := f.bus.Subscribe(events.Filter{})
	defer sub.Close()

	ticket := f.createTicket(domain.TicketPriorityHigh)

	gt.Value(t, ticket.Status).Equal(domain.TicketStatusNew)
	gt.Value(t, ticket.Number).Equal("100001")
	gt.Value(t, ticket.DepartmentID).Equal(f.support.ID)
	gt.Value(t, ticket.Priority).Equal(domain.TicketPriorityHigh)
	gt.Value(t, ticket.SLAPolicyID).Equal(f.policy.ID)
	gt.Bool(t, ticket.SLADeadline.Equal(testStart.Add(4*time.Hour))).True()
	gt.Bool(t, ticket.Overdue).False()
	gt.Bool(t, ticket.Answered).False()
	gt.Value(t, ticket.RequesterID).Equal("user-1")

	entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(1)
	gt.Number(t, entries[0].Seq).Equal(0)
	gt.Value(t, entries[0].Type).Equal(domain.EntryTypeMessage)
	gt.Value(t, entries[0].Visibility).Equal(domain.VisibilityExternal)
	gt.Value(t, *entries[0].AuthorID).Equal("user-1")

	got := drainEvents(sub)
	gt.Array(t, got).Length(1)
	gt.Value(t, got[0].Type).Equal(events.EventTicketCreated)
	gt.Value(t, got[0].TicketNumber).Equal("100001")
	gt.Value(t, got[0].AfterStatus).Equal(domain.TicketStatusNew)
}

func TestCreateTicketValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	t.Run("subject required", func(t *testing.T) {
		_, err := f.lifecycle.CreateTicket(ctx, f.userActor(), service.CreateTicketInput{
			Body:         "body",
			DepartmentID: &f.support.ID,
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})

	t.Run("initial body required", func(t *testing.T) {
		_, err := f.lifecycle.CreateTicket(ctx, f.userActor(), service.CreateTicketInput{
			Subject:      "subject",
			DepartmentID: &f.support.ID,
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})

	t.Run("staff must name a requester", func(t *testing.T) {
		_, err := f.lifecycle.CreateTicket(ctx, f.agentActor(), service.CreateTicketInput{
			Subject:      "opened on the phone",
			Body:         "caller reports an outage",
			DepartmentID: &f.support.ID,
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})

	t.Run("topic or department required", func(t *testing.T) {
		_, err := f.lifecycle.CreateTicket(ctx, f.userActor(), service.CreateTicketInput{
			Subject: "subject",
			Body:    "body",
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})
}

func TestStaffCreatesOnBehalfOfRequester(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	ticket, err := f.lifecycle.CreateTicket(ctx, f.agentActor(), service.CreateTicketInput{
		Subject:      "opened on the phone",
		Body:         "caller reports an outage",
		RequesterID:  "user-7",
		DepartmentID: &f.support.ID,
		Source:       domain.SourcePhone,
	})
	gt.NoError(t, err).Required()

	gt.Value(t, ticket.RequesterID).Equal("user-7")
	gt.Value(t, ticket.Source).Equal(domain.SourcePhone)
	gt.Bool(t, ticket.Answered).True()

	// The initial entry is always authored as the requester's message.
	entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(1)
	gt.Value(t, entries[0].AuthorType).Equal(domain.ActorTypeUser)
	gt.Value(t, *entries[0].AuthorID).Equal("user-7")
}

func TestTicketNumbersAreSequential(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first := f.createTicket(domain.TicketPriorityMedium)
	second := f.createTicket(domain.TicketPriorityMedium)
	gt.Value(t, first.Number).Equal("100001")
	gt.Value(t, second.Number).Equal("100002")

	found, err := f.lifecycle.GetTicketByNumber(ctx, "100002")
	gt.NoError(t, err).Required()
	gt.Value(t, found.ID).Equal(second.ID)

	_, err = f.lifecycle.GetTicketByNumber(ctx, "999999")
	gt.Error(t, err)
	gt.Value(t, util.CodeOf(err)).Equal(util.CodeNotFound)
}

func TestDepartmentAssignmentClaimsTicket(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityHigh)

	sub := f.bus.Subscribe(events.Filter{Types: []events.EventType{events.EventTicketAssigned}})
	defer sub.Close()

	updated, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
		Assignment: &service.AssignmentTarget{DepartmentID: &f.support.ID},
	})
	gt.NoError(t, err).Required()

	gt.Value(t, updated.Status).Equal(domain.TicketStatusOpen)
	gt.Value(t, updated.TeamID).Nil()
	gt.Value(t, updated.AssigneeID).Nil()

	entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(2)
	gt.Value(t, entries[1].Type).Equal(domain.EntryTypeSystem)
	gt.Value(t, entries[1].Visibility).Equal(domain.VisibilityInternal)

	got := drainEvents(sub)
	gt.Array(t, got).Length(1)
	gt.Value(t, got[0].BeforeStatus).Equal(domain.TicketStatusNew)
	gt.Value(t, got[0].AfterStatus).Equal(domain.TicketStatusOpen)
}

func TestStaffAssignmentSetsAssigned(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)

	updated, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
		Assignment: &service.AssignmentTarget{StaffID: &f.agent.ID},
	})
	gt.NoError(t, err).Required()
	gt.Value(t, updated.Status).Equal(domain.TicketStatusAssigned)
	gt.Value(t, *updated.AssigneeID).Equal(f.agent.ID)

	// A later department-only target returns the ticket to the queue.
	updated, err = f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
		Assignment: &service.AssignmentTarget{DepartmentID: &f.support.ID},
	})
	gt.NoError(t, err).Required()
	gt.Value(t, updated.Status).Equal(domain.TicketStatusOpen)
	gt.Value(t, updated.AssigneeID).Nil()
}

func TestAssignmentToUnknownStaffIsRefused(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)

	missing := "staff-missing"
	_, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
		Assignment: &service.AssignmentTarget{StaffID: &missing},
	})
	gt.Error(t, err)
	gt.Value(t, util.CodeOf(err)).Equal(util.CodeInvalidTarget)

	reloaded, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, reloaded.Status).Equal(domain.TicketStatusNew)
}

func TestReplySemantics(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)

	t.Run("staff reply marks answered", func(t *testing.T) {
		updated, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpReply, service.Payload{
			Body: "have you tried turning it off",
		})
		gt.NoError(t, err).Required()
		gt.Bool(t, updated.Answered).True()
		gt.Value(t, updated.Status).Equal(domain.TicketStatusNew)

		entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 10)
		gt.NoError(t, err).Required()
		gt.Value(t, entries[len(entries)-1].Type).Equal(domain.EntryTypeResponse)
	})

	t.Run("user reply from pending pulls the ticket back open", func(t *testing.T) {
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
			Assignment: &service.AssignmentTarget{StaffID: &f.agent.ID},
		})
		gt.NoError(t, err).Required()
		_, err = f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpPend, service.Payload{})
		gt.NoError(t, err).Required()

		updated, err := f.lifecycle.Apply(ctx, ticket.ID, f.userActor(), domain.OpReply, service.Payload{
			Body: "still broken",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Status).Equal(domain.TicketStatusOpen)
		gt.Bool(t, updated.Answered).False()

		entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 20)
		gt.NoError(t, err).Required()
		gt.Value(t, entries[len(entries)-1].Type).Equal(domain.EntryTypeMessage)
	})

	t.Run("empty body refused", func(t *testing.T) {
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.userActor(), domain.OpReply, service.Payload{Body: "   "})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})
}

func TestNoteStaysInternalAndKeepsFlags(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)

	updated, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpNote, service.Payload{
		Body: "requester called, still waiting on the vendor",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, updated.Status).Equal(domain.TicketStatusNew)
	gt.Bool(t, updated.Answered).False()

	entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(2)
	gt.Value(t, entries[1].Type).Equal(domain.EntryTypeNote)
	gt.Value(t, entries[1].Visibility).Equal(domain.VisibilityInternal)
}

func TestCloseThenCloseAgainFails(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)

	_, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
		Assignment: &service.AssignmentTarget{DepartmentID: &f.support.ID},
	})
	gt.NoError(t, err).Required()

	closed, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpClose, service.Payload{})
	gt.NoError(t, err).Required()
	gt.Value(t, closed.Status).Equal(domain.TicketStatusClosed)
	gt.Value(t, closed.ClosedAt).NotNil()

	before, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 20)
	gt.NoError(t, err).Required()

	_, err = f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpClose, service.Payload{})
	gt.Error(t, err)
	gt.Value(t, util.CodeOf(err)).Equal(util.CodeInvalidTransition)
	gt.String(t, err.Error()).Contains("CLOSED")

	after, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 20)
	gt.NoError(t, err).Required()
	gt.Array(t, after).Length(len(before))
}

func TestTransferMembershipAndCleanup(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	t.Run("agent without target membership is denied", func(t *testing.T) {
		ticket := f.createTicket(domain.TicketPriorityMedium)
		sub := f.bus.Subscribe(events.Filter{TicketID: ticket.ID, Types: []events.EventType{events.EventTicketTransferred}})
		defer sub.Close()

		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpTransfer, service.Payload{
			DepartmentID: f.billing.ID,
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodePermissionDenied)

		reloaded, err := f.lifecycle.GetTicket(ctx, ticket.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, reloaded.DepartmentID).Equal(f.support.ID)
		gt.Array(t, drainEvents(sub)).Length(0)

		_, rejections, _, _, _ := f.metrics.Snapshot()
		gt.Number(t, rejections["transfer|PERMISSION_DENIED"]).Equal(1)
	})

	t.Run("transfer clears team and assignee foreign to the destination", func(t *testing.T) {
		ticket := f.createTicket(domain.TicketPriorityMedium)
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
			Assignment: &service.AssignmentTarget{TeamID: &f.team.ID, StaffID: &f.agent.ID},
		})
		gt.NoError(t, err).Required()

		moved, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpTransfer, service.Payload{
			DepartmentID: f.billing.ID,
		})
		gt.NoError(t, err).Required()
		gt.Value(t, moved.DepartmentID).Equal(f.billing.ID)
		gt.Value(t, moved.TeamID).Nil()
		gt.Value(t, moved.AssigneeID).Nil()
		// The status survives the move even when the assignee does not.
		gt.Value(t, moved.Status).Equal(domain.TicketStatusAssigned)
	})

	t.Run("transfer into the current department is refused", func(t *testing.T) {
		ticket := f.createTicket(domain.TicketPriorityMedium)
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpTransfer, service.Payload{
			DepartmentID: f.support.ID,
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})
}

func TestSetPriorityDeadlineRules(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)
	gt.Bool(t, ticket.SLADeadline.Equal(testStart.Add(24*time.Hour))).True()

	t.Run("raising priority tightens the deadline", func(t *testing.T) {
		updated, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpSetPriority, service.Payload{
			Priority: domain.TicketPriorityUrgent,
		})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Priority).Equal(domain.TicketPriorityUrgent)
		gt.Bool(t, updated.SLADeadline.Equal(testStart.Add(time.Hour))).True()
	})

	t.Run("unchanged priority is refused", func(t *testing.T) {
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpSetPriority, service.Payload{
			Priority: domain.TicketPriorityUrgent,
		})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})

	t.Run("a missed deadline stays missed", func(t *testing.T) {
		f.clk.Advance(2 * time.Hour)
		_, err := f.lifecycle.Apply(ctx, ticket.ID, domain.SystemActor(), domain.OpMarkOverdue, service.Payload{})
		gt.NoError(t, err).Required()

		updated, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpSetPriority, service.Payload{
			Priority: domain.TicketPriorityLow,
		})
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Priority).Equal(domain.TicketPriorityLow)
		gt.Bool(t, updated.SLADeadline.Equal(testStart.Add(time.Hour))).True()
		gt.Bool(t, updated.Overdue).True()
	})
}

func TestReopenRestartsTheSLAClock(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityHigh)

	_, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
		Assignment: &service.AssignmentTarget{StaffID: &f.agent.ID},
	})
	gt.NoError(t, err).Required()
	_, err = f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpResolve, service.Payload{})
	gt.NoError(t, err).Required()
	_, err = f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpClose, service.Payload{})
	gt.NoError(t, err).Required()

	f.clk.Advance(48 * time.Hour)
	reopenTime := f.clk.Now()

	reopened, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpReopen, service.Payload{})
	gt.NoError(t, err).Required()

	gt.Value(t, reopened.Status).Equal(domain.TicketStatusOpen)
	gt.Value(t, reopened.ReopenedAt).NotNil()
	gt.Bool(t, reopened.ReopenedAt.Equal(reopenTime)).True()
	gt.Value(t, reopened.ClosedAt).Nil()
	gt.Bool(t, reopened.Overdue).False()
	gt.Bool(t, reopened.Answered).False()
	gt.Bool(t, reopened.SLADeadline.Equal(reopenTime.Add(4*time.Hour))).True()
}

func TestResolveMarksAnswered(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)

	_, err := f.lifecycle.Apply(ctx, ticket.ID, f.leadActor(), domain.OpAssign, service.Payload{
		Assignment: &service.AssignmentTarget{DepartmentID: &f.support.ID},
	})
	gt.NoError(t, err).Required()

	resolved, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpResolve, service.Payload{
		Comment: "fixed by replacing the fuser",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, resolved.Status).Equal(domain.TicketStatusResolved)
	gt.Bool(t, resolved.Answered).True()
}

func TestArchiveAndUnarchiveGate(t *testing.T) {
	ctx := context.Background()

	t.Run("unarchive is refused while disabled", func(t *testing.T) {
		f := newEngineFixture(t)
		ticket := f.createTicket(domain.TicketPriorityMedium)

		archived, err := f.lifecycle.Apply(ctx, ticket.ID, f.adminActor(), domain.OpArchive, service.Payload{})
		gt.NoError(t, err).Required()
		gt.Value(t, archived.Status).Equal(domain.TicketStatusArchived)

		_, err = f.lifecycle.Apply(ctx, ticket.ID, f.adminActor(), domain.OpUnarchive, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodePermissionDenied)
	})

	t.Run("unarchive lands in closed when enabled", func(t *testing.T) {
		f := newEngineWith(t, config.EngineConfig{UnarchiveEnabled: true})
		ticket := f.createTicket(domain.TicketPriorityMedium)

		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.adminActor(), domain.OpArchive, service.Payload{})
		gt.NoError(t, err).Required()

		restored, err := f.lifecycle.Apply(ctx, ticket.ID, f.adminActor(), domain.OpUnarchive, service.Payload{})
		gt.NoError(t, err).Required()
		gt.Value(t, restored.Status).Equal(domain.TicketStatusClosed)
		gt.Value(t, restored.ClosedAt).NotNil()
	})

	t.Run("agents may not archive", func(t *testing.T) {
		f := newEngineFixture(t)
		ticket := f.createTicket(domain.TicketPriorityMedium)
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpArchive, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodePermissionDenied)
	})
}

func TestDeleteHardRemovesTicketAndThread(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)
	_, err := f.lifecycle.Apply(ctx, ticket.ID, f.userActor(), domain.OpReply, service.Payload{Body: "ping"})
	gt.NoError(t, err).Required()

	t.Run("agents may not delete", func(t *testing.T) {
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.agentActor(), domain.OpDelete, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodePermissionDenied)
	})

	t.Run("admin delete leaves only the event", func(t *testing.T) {
		sub := f.bus.Subscribe(events.Filter{Types: []events.EventType{events.EventTicketDeleted}})
		defer sub.Close()

		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.adminActor(), domain.OpDelete, service.Payload{})
		gt.NoError(t, err).Required()

		_, err = f.lifecycle.GetTicket(ctx, ticket.ID)
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeNotFound)

		_, err = f.lifecycle.ListThread(ctx, ticket.ID, 0, 10)
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeNotFound)

		got := drainEvents(sub)
		gt.Array(t, got).Length(1)
		payload, ok := got[0].Payload.(events.TicketDeletedPayload)
		gt.Bool(t, ok).True()
		gt.Number(t, payload.EntriesRemoved).Equal(2)
		gt.Value(t, got[0].AfterStatus).Equal(domain.TicketStatus(""))
	})
}

func TestMarkOverdueFiresExactlyOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)
	system := domain.SystemActor()

	t.Run("staff may not mark overdue", func(t *testing.T) {
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.adminActor(), domain.OpMarkOverdue, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodePermissionDenied)
	})

	t.Run("before the deadline nothing happens", func(t *testing.T) {
		_, err := f.lifecycle.Apply(ctx, ticket.ID, system, domain.OpMarkOverdue, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeInvalidTransition)
	})

	t.Run("past the deadline the flag is set once", func(t *testing.T) {
		f.clk.Advance(25 * time.Hour)

		marked, err := f.lifecycle.Apply(ctx, ticket.ID, system, domain.OpMarkOverdue, service.Payload{})
		gt.NoError(t, err).Required()
		gt.Bool(t, marked.Overdue).True()

		entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 10)
		gt.NoError(t, err).Required()
		last := entries[len(entries)-1]
		gt.Value(t, last.Body).Equal("SLA deadline passed")
		gt.Value(t, last.AuthorID).Nil()

		_, err = f.lifecycle.Apply(ctx, ticket.ID, system, domain.OpMarkOverdue, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeInvalidTransition)
	})
}

func TestRefusalOrder(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	t.Run("missing ticket wins over permissions", func(t *testing.T) {
		_, err := f.lifecycle.Apply(ctx, "no-such-ticket", f.userActor(), domain.OpDelete, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeNotFound)
	})

	t.Run("structural invalidity wins over permissions", func(t *testing.T) {
		ticket := f.createTicket(domain.TicketPriorityMedium)
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.adminActor(), domain.OpArchive, service.Payload{})
		gt.NoError(t, err).Required()

		// A foreign agent gets the transition refusal, not the
		// permission one.
		foreign := domain.ActorContext{ID: "staff-else", Type: domain.ActorTypeStaff, Role: domain.StaffRoleAgent}
		_, err = f.lifecycle.Apply(ctx, ticket.ID, foreign, domain.OpReply, service.Payload{Body: "hi"})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeInvalidTransition)
	})

	t.Run("create is not an apply operation", func(t *testing.T) {
		ticket := f.createTicket(domain.TicketPriorityMedium)
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.userActor(), domain.OpCreate, service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})

	t.Run("unknown operation is refused", func(t *testing.T) {
		ticket := f.createTicket(domain.TicketPriorityMedium)
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.userActor(), domain.Operation("defenestrate"), service.Payload{})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodeValidationFailed)
	})
}

func TestUserCannotTouchForeignTickets(t *testing.T) {
	ctx := context.Background()

	t.Run("foreign reply denied by default", func(t *testing.T) {
		f := newEngineFixture(t)
		ticket := f.createTicket(domain.TicketPriorityMedium)

		stranger := domain.ActorContext{ID: "user-2", Type: domain.ActorTypeUser}
		_, err := f.lifecycle.Apply(ctx, ticket.ID, stranger, domain.OpReply, service.Payload{Body: "me too"})
		gt.Error(t, err)
		gt.Value(t, util.CodeOf(err)).Equal(util.CodePermissionDenied)
	})

	t.Run("organization visibility lets colleagues reply", func(t *testing.T) {
		f := newEngineWith(t, config.EngineConfig{OrgWideVisibility: true})
		org := "org-9"
		requester := domain.ActorContext{ID: "user-1", Type: domain.ActorTypeUser, OrganizationID: &org}
		ticket, err := f.lifecycle.CreateTicket(ctx, requester, service.CreateTicketInput{
			Subject:      "shared printer",
			Body:         "jammed again",
			DepartmentID: &f.support.ID,
		})
		gt.NoError(t, err).Required()

		colleague := domain.ActorContext{ID: "user-2", Type: domain.ActorTypeUser, OrganizationID: &org}
		_, err = f.lifecycle.Apply(ctx, ticket.ID, colleague, domain.OpReply, service.Payload{Body: "same here"})
		gt.NoError(t, err)
	})
}

func TestConcurrentRepliesStayGapless(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)

	const repliers = 8
	errs := make(chan error, repliers)
	var wg sync.WaitGroup
	for i := 0; i < repliers; i++ {
		wg.Add(1)
		actor := f.userActor()
		if i%2 == 1 {
			actor = f.agentActor()
		}
		go func(actor domain.ActorContext) {
			defer wg.Done()
			_, err := f.lifecycle.Apply(ctx, ticket.ID, actor, domain.OpReply, service.Payload{Body: "reply"})
			errs <- err
		}(actor)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		gt.NoError(t, err)
	}

	entries, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 50)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(repliers + 1)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	for i, entry := range entries {
		gt.Number(t, entry.Seq).Equal(int64(i))
	}
}

func TestLifecycleWalkEmitsOneEventAndOneEntryPerOperation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	sub := f.bus.Subscribe(events.Filter{})
	defer sub.Close()

	ticket := f.createTicket(domain.TicketPriorityMedium)

	steps := []struct {
		actor domain.ActorContext
		op    domain.Operation
		load  service.Payload
		event events.EventType
		after domain.TicketStatus
	}{
		{f.userActor(), domain.OpReply, service.Payload{Body: "more detail"}, events.EventTicketReplied, domain.TicketStatusNew},
		{f.agentActor(), domain.OpNote, service.Payload{Body: "looks like hardware"}, events.EventTicketNoteAdded, domain.TicketStatusNew},
		{f.leadActor(), domain.OpAssign, service.Payload{Assignment: &service.AssignmentTarget{StaffID: &f.agent.ID}}, events.EventTicketAssigned, domain.TicketStatusAssigned},
		{f.agentActor(), domain.OpPend, service.Payload{}, events.EventTicketPending, domain.TicketStatusPending},
		{f.agentActor(), domain.OpResolve, service.Payload{}, events.EventTicketResolved, domain.TicketStatusResolved},
		{f.agentActor(), domain.OpClose, service.Payload{}, events.EventTicketClosed, domain.TicketStatusClosed},
		{f.leadActor(), domain.OpReopen, service.Payload{}, events.EventTicketReopened, domain.TicketStatusOpen},
		{f.adminActor(), domain.OpArchive, service.Payload{}, events.EventTicketArchived, domain.TicketStatusArchived},
	}

	for _, step := range steps {
		updated, err := f.lifecycle.Apply(ctx, ticket.ID, step.actor, step.op, step.load)
		gt.NoError(t, err).Required()
		gt.Value(t, updated.Status).Equal(step.after)
	}

	got := drainEvents(sub)
	gt.Array(t, got).Length(len(steps) + 1)
	gt.Value(t, got[0].Type).Equal(events.EventTicketCreated)
	for i, step := range steps {
		gt.Value(t, got[i+1].Type).Equal(step.event)
		gt.Value(t, got[i+1].AfterStatus).Equal(step.after)
	}

	// Every operation appended exactly one entry, create included.
	entries, err := f.store.Threads().ListEntries(ctx, ticket.ID, 0, 50)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(len(steps) + 1)

	transitions, _, _, published, _ := f.metrics.Snapshot()
	gt.Number(t, published).Equal(int64(len(steps) + 1))
	gt.Number(t, transitions["create"]).Equal(1)
	gt.Number(t, transitions["archive"]).Equal(1)
}

func TestThreadPaginationResumesFromSequence(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(domain.TicketPriorityMedium)
	for i := 0; i < 3; i++ {
		_, err := f.lifecycle.Apply(ctx, ticket.ID, f.userActor(), domain.OpReply, service.Payload{Body: "again"})
		gt.NoError(t, err).Required()
	}

	first, err := f.lifecycle.ListThread(ctx, ticket.ID, 0, 2)
	gt.NoError(t, err).Required()
	gt.Array(t, first).Length(2)
	gt.Number(t, first[0].Seq).Equal(0)
	gt.Number(t, first[1].Seq).Equal(1)

	rest, err := f.lifecycle.ListThread(ctx, ticket.ID, first[1].Seq+1, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, rest).Length(2)
	gt.Number(t, rest[0].Seq).Equal(2)
	gt.Number(t, rest[1].Seq).Equal(3)

	empty, err := f.lifecycle.ListThread(ctx, ticket.ID, 10, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, empty).Length(0)
}
