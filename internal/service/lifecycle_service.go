package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/locks"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/permission"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// LifecycleService owns every ticket mutation. Each operation runs in
// a per-ticket critical section, commits its row changes and thread
// entry in one transaction, and publishes exactly one event after the
// commit while the lock is still held, so per-ticket event order
// equals commit order.
type LifecycleService struct {
	store   repository.Store
	cache   *repository.TicketCache
	routing *RoutingService
	gate    *permission.Gate
	bus     *events.Bus
	locks   *locks.Keyed
	clk     clock.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
	engine  config.EngineConfig
}

// LifecycleDependencies bundles collaborators for the lifecycle
// service.
type LifecycleDependencies struct {
	Store   repository.Store
	Cache   *repository.TicketCache
	Routing *RoutingService
	Gate    *permission.Gate
	Bus     *events.Bus
	Locks   *locks.Keyed
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Engine  config.EngineConfig
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	keyed := deps.Locks
	if keyed == nil {
		keyed = locks.NewKeyed()
	}
	return &LifecycleService{
		store:   deps.Store,
		cache:   deps.Cache,
		routing: deps.Routing,
		gate:    deps.Gate,
		bus:     deps.Bus,
		locks:   keyed,
		clk:     clk,
		logger:  logger,
		metrics: deps.Metrics,
		engine:  deps.Engine,
	}
}

// CreateTicketInput describes a new ticket. Either TopicID or
// DepartmentID must be set; the topic wins when both are present.
// RequesterID is ignored for user actors, who always open tickets for
// themselves.
type CreateTicketInput struct {
	Subject        string
	Body           string
	RequesterID    string
	RequesterOrgID *string
	TopicID        *string
	DepartmentID   *string
	Priority       domain.TicketPriority
	Source         domain.TicketSource
	Attachments    []AttachmentInput
}

// AttachmentInput carries attachment metadata for a new entry. The
// blob itself lives in external storage under StorageKey.
type AttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// Payload carries the operation-specific arguments of Apply. Body and
// Attachments feed reply and note, Assignment feeds assign,
// DepartmentID names the transfer destination, Priority feeds
// set-priority. Comment annotates the system entry of any status move.
type Payload struct {
	Body         string
	Attachments  []AttachmentInput
	Assignment   *AssignmentTarget
	DepartmentID string
	Priority     domain.TicketPriority
	Comment      string
}

// Bus exposes the event bus for observers.
func (s *LifecycleService) Bus() *events.Bus { return s.bus }

// CreateTicket routes and opens a new ticket. The number claim, ticket
// row, thread and initial message entry commit atomically; an aborted
// create never leaks a visible ticket number.
func (s *LifecycleService) CreateTicket(ctx context.Context, actor domain.ActorContext, input CreateTicketInput) (*domain.Ticket, error) {
	ticket, err := s.createTicket(ctx, actor, input)
	if err != nil {
		s.metrics.RecordRejection(string(domain.OpCreate), util.CodeOf(err))
		return nil, err
	}
	return ticket, nil
}

func (s *LifecycleService) createTicket(ctx context.Context, actor domain.ActorContext, input CreateTicketInput) (*domain.Ticket, error) {
	if err := s.gate.Authorize(actor, domain.OpCreate, nil, ""); err != nil {
		return nil, err
	}

	subject := strings.TrimSpace(input.Subject)
	body := strings.TrimSpace(input.Body)
	requester := strings.TrimSpace(input.RequesterID)
	orgID := input.RequesterOrgID
	if actor.Type == domain.ActorTypeUser {
		requester = actor.ID
		orgID = actor.OrganizationID
	}
	switch {
	case subject == "":
		return nil, util.NewValidationError("subject is required", nil)
	case body == "":
		return nil, util.NewValidationError("an initial message body is required", nil)
	case requester == "":
		return nil, util.NewValidationError("requester_id is required when staff open tickets", nil)
	}

	resolution, err := s.routing.ResolveForCreate(ctx, input.TopicID, input.DepartmentID, input.Priority)
	if err != nil {
		return nil, err
	}
	source := input.Source
	if source == "" {
		source = domain.SourceWeb
	}

	now := s.clk.Now()
	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		Subject:        subject,
		RequesterID:    requester,
		RequesterOrgID: orgID,
		DepartmentID:   resolution.DepartmentID,
		TopicID:        resolution.TopicID,
		Status:         domain.TicketStatusNew,
		Priority:       resolution.Priority,
		Source:         source,
		SLAPolicyID:    resolution.Policy.ID,
		SLADeadline:    resolution.Policy.DeadlineFrom(now, resolution.Priority),
		Answered:       actor.Type == domain.ActorTypeStaff,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var event events.Event
	err = s.commit(ctx, domain.OpCreate, func(tx repository.Store) error {
		value, padding, err := tx.Sequences().Claim(ctx, s.sequenceName())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return util.NewNotFound("number sequence", map[string]any{"name": s.sequenceName()})
			}
			return err
		}
		ticket.Number = domain.FormatNumber(value, padding)

		if err := tx.Tickets().Create(ctx, ticket); err != nil {
			return err
		}
		thread := &domain.Thread{
			ID:        uuid.NewString(),
			TicketID:  ticket.ID,
			NextSeq:   0,
			CreatedAt: now,
		}
		if err := tx.Threads().CreateThread(ctx, thread); err != nil {
			return err
		}
		requesterID := ticket.RequesterID
		entry := &domain.ThreadEntry{
			Type:        domain.EntryTypeMessage,
			AuthorType:  domain.ActorTypeUser,
			AuthorID:    &requesterID,
			Body:        body,
			Visibility:  domain.VisibilityExternal,
			Attachments: buildAttachments(input.Attachments, now),
		}
		if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
			return err
		}
		event = s.newEvent(events.EventTicketCreated, ticket, actor, "", events.TicketCreatedPayload{
			DepartmentID: ticket.DepartmentID,
			TopicID:      ticket.TopicID,
			Priority:     ticket.Priority,
			Source:       ticket.Source,
			Subject:      ticket.Subject,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, domain.OpCreate, ticket.ID, event)
	return ticket, nil
}

// Apply runs one named operation against an existing ticket. Checks
// run in a fixed order: the ticket must exist, the operation must be
// structurally valid for the current status, and the actor must pass
// the permission gate. Racing operations on the same ticket serialize;
// the later one re-reads and re-validates against the committed state.
func (s *LifecycleService) Apply(ctx context.Context, ticketID string, actor domain.ActorContext, op domain.Operation, payload Payload) (*domain.Ticket, error) {
	ticket, err := s.apply(ctx, ticketID, actor, op, payload)
	if err != nil {
		s.metrics.RecordRejection(string(op), util.CodeOf(err))
		return nil, err
	}
	return ticket, nil
}

func (s *LifecycleService) apply(ctx context.Context, ticketID string, actor domain.ActorContext, op domain.Operation, payload Payload) (*domain.Ticket, error) {
	if op == domain.OpCreate {
		return nil, util.NewValidationError("create does not target an existing ticket, use CreateTicket", nil)
	}
	if _, known := allowedSources[op]; !known {
		return nil, util.NewValidationError("unknown operation", map[string]any{"operation": string(op)})
	}

	release, err := s.locks.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		ticket *domain.Ticket
		event  events.Event
	)
	err = s.commit(ctx, op, func(tx repository.Store) error {
		current, err := tx.Tickets().GetByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
			}
			return err
		}
		if !operationAllowed(op, current.Status) {
			return util.NewInvalidTransition(string(op), string(current.Status), current.ID)
		}
		if err := s.gate.Authorize(actor, op, current, transferDestination(op, payload)); err != nil {
			return err
		}

		now := s.clk.Now()
		var ev events.Event
		switch op {
		case domain.OpReply:
			ev, err = s.applyReply(ctx, tx, current, actor, payload, now)
		case domain.OpNote:
			ev, err = s.applyNote(ctx, tx, current, actor, payload, now)
		case domain.OpAssign:
			ev, err = s.applyAssign(ctx, tx, current, actor, payload, now)
		case domain.OpTransfer:
			ev, err = s.applyTransfer(ctx, tx, current, actor, payload, now)
		case domain.OpSetPriority:
			ev, err = s.applySetPriority(ctx, tx, current, actor, payload, now)
		case domain.OpPend, domain.OpResolve, domain.OpClose, domain.OpReopen, domain.OpArchive, domain.OpUnarchive:
			ev, err = s.applyStatusMove(ctx, tx, current, actor, op, payload, now)
		case domain.OpDelete:
			ev, err = s.applyDelete(ctx, tx, current, actor, now)
		case domain.OpMarkOverdue:
			ev, err = s.applyMarkOverdue(ctx, tx, current, actor, now)
		}
		if err != nil {
			return err
		}
		ticket = current
		event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, op, ticket.ID, event)
	return ticket, nil
}

// GetTicket fetches a ticket, served from the read cache when one is
// configured.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	if s.cache != nil {
		ticket, err = s.cache.GetByID(ctx, ticketID)
	} else {
		ticket, err = s.store.Tickets().GetByID(ctx, ticketID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// GetTicketByNumber fetches a ticket by its human-readable number.
func (s *LifecycleService) GetTicketByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	if s.cache != nil {
		ticket, err = s.cache.GetByNumber(ctx, number)
	} else {
		ticket, err = s.store.Tickets().GetByNumber(ctx, number)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewNotFound("ticket", map[string]any{"number": number})
		}
		return nil, err
	}
	return ticket, nil
}

// ListThread returns committed thread entries in ascending sequence
// order starting at fromSeq. Restarting from the last seen sequence
// number never reorders or skips entries.
func (s *LifecycleService) ListThread(ctx context.Context, ticketID string, fromSeq int64, limit int) ([]domain.ThreadEntry, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.store.Threads().ListEntries(ctx, ticketID, fromSeq, limit)
}

// ListTickets runs a filtered ticket search.
func (s *LifecycleService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.store.Tickets().ListWithFilter(ctx, filter)
}

func (s *LifecycleService) applyReply(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, payload Payload, now time.Time) (events.Event, error) {
	body := strings.TrimSpace(payload.Body)
	if body == "" {
		return events.Event{}, util.NewValidationError("reply body is required", map[string]any{"ticket_id": ticket.ID})
	}
	before := ticket.Status
	entry := &domain.ThreadEntry{
		Type:        domain.EntryTypeMessage,
		AuthorType:  actor.Type,
		AuthorID:    authorID(actor),
		Body:        body,
		Visibility:  domain.VisibilityExternal,
		Attachments: buildAttachments(payload.Attachments, now),
	}
	if actor.Type == domain.ActorTypeStaff {
		entry.Type = domain.EntryTypeResponse
		ticket.Answered = true
	} else {
		if ticket.Status == domain.TicketStatusPending {
			ticket.Status = domain.TicketStatusOpen
		}
		ticket.Answered = false
	}
	ticket.UpdatedAt = now

	if err := s.updateTicket(ctx, tx, ticket, domain.OpReply); err != nil {
		return events.Event{}, err
	}
	if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
		return events.Event{}, err
	}
	return s.newEvent(events.EventTicketReplied, ticket, actor, before, events.ThreadEntryPayload{
		EntryID:     entry.ID,
		Seq:         entry.Seq,
		EntryType:   entry.Type,
		AuthorType:  entry.AuthorType,
		AuthorID:    entry.AuthorID,
		BodyPreview: bodyPreview(body, 120),
	}), nil
}

func (s *LifecycleService) applyNote(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, payload Payload, now time.Time) (events.Event, error) {
	body := strings.TrimSpace(payload.Body)
	if body == "" {
		return events.Event{}, util.NewValidationError("note body is required", map[string]any{"ticket_id": ticket.ID})
	}
	before := ticket.Status
	entry := &domain.ThreadEntry{
		Type:        domain.EntryTypeNote,
		AuthorType:  actor.Type,
		AuthorID:    authorID(actor),
		Body:        body,
		Visibility:  domain.VisibilityInternal,
		Attachments: buildAttachments(payload.Attachments, now),
	}
	ticket.UpdatedAt = now

	if err := s.updateTicket(ctx, tx, ticket, domain.OpNote); err != nil {
		return events.Event{}, err
	}
	if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
		return events.Event{}, err
	}
	return s.newEvent(events.EventTicketNoteAdded, ticket, actor, before, events.ThreadEntryPayload{
		EntryID:     entry.ID,
		Seq:         entry.Seq,
		EntryType:   entry.Type,
		AuthorType:  entry.AuthorType,
		AuthorID:    entry.AuthorID,
		BodyPreview: bodyPreview(body, 120),
	}), nil
}

func (s *LifecycleService) applyAssign(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, payload Payload, now time.Time) (events.Event, error) {
	if payload.Assignment == nil {
		return events.Event{}, util.NewValidationError("assignment target is required", map[string]any{"ticket_id": ticket.ID})
	}
	resolved, err := s.routing.ResolveAssignment(ctx, ticket, *payload.Assignment)
	if err != nil {
		return events.Event{}, err
	}

	before := ticket.Status
	ticket.DepartmentID = resolved.DepartmentID
	ticket.TeamID = resolved.TeamID
	ticket.AssigneeID = resolved.AssigneeID
	if resolved.AssigneeID != nil || resolved.TeamID != nil {
		ticket.Status = domain.TicketStatusAssigned
	} else if ticket.Status == domain.TicketStatusNew || ticket.Status == domain.TicketStatusAssigned {
		// A department-only target claims a new ticket into the queue,
		// or returns an assigned one to it.
		ticket.Status = domain.TicketStatusOpen
	}
	ticket.UpdatedAt = now

	if err := s.updateTicket(ctx, tx, ticket, domain.OpAssign); err != nil {
		return events.Event{}, err
	}
	entry := transitionEntry(actor, withComment(assignmentBody(resolved), payload.Comment))
	if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
		return events.Event{}, err
	}
	return s.newEvent(events.EventTicketAssigned, ticket, actor, before, events.TicketAssignedPayload{
		DepartmentID:    ticket.DepartmentID,
		TeamID:          ticket.TeamID,
		AssigneeStaffID: ticket.AssigneeID,
	}), nil
}

func (s *LifecycleService) applyTransfer(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, payload Payload, now time.Time) (events.Event, error) {
	dest := strings.TrimSpace(payload.DepartmentID)
	if dest == "" {
		return events.Event{}, util.NewValidationError("transfer requires a department id", map[string]any{"ticket_id": ticket.ID})
	}
	if dest == ticket.DepartmentID {
		return events.Event{}, util.NewValidationError("ticket already belongs to the department", map[string]any{
			"ticket_id":     ticket.ID,
			"department_id": dest,
		})
	}
	dept, err := s.routing.departmentTarget(ctx, dest)
	if err != nil {
		return events.Event{}, err
	}

	before := ticket.Status
	oldDept := ticket.DepartmentID
	ticket.DepartmentID = dept.ID

	// Team and assignee survive the move only when they belong to the
	// destination department.
	if ticket.TeamID != nil {
		team, err := tx.Teams().GetByID(ctx, *ticket.TeamID)
		switch {
		case err == nil && team.DepartmentID == dept.ID:
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return events.Event{}, err
		default:
			ticket.TeamID = nil
		}
	}
	if ticket.AssigneeID != nil {
		staff, err := tx.Staff().GetByID(ctx, *ticket.AssigneeID)
		switch {
		case err == nil && staff.DepartmentID != nil && *staff.DepartmentID == dept.ID:
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return events.Event{}, err
		default:
			ticket.AssigneeID = nil
		}
	}
	ticket.UpdatedAt = now

	if err := s.updateTicket(ctx, tx, ticket, domain.OpTransfer); err != nil {
		return events.Event{}, err
	}
	body := fmt.Sprintf("transferred from department %s to %s", oldDept, dept.ID)
	entry := transitionEntry(actor, withComment(body, payload.Comment))
	if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
		return events.Event{}, err
	}
	return s.newEvent(events.EventTicketTransferred, ticket, actor, before, events.TicketTransferredPayload{
		OldDepartmentID: oldDept,
		NewDepartmentID: dept.ID,
	}), nil
}

func (s *LifecycleService) applySetPriority(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, payload Payload, now time.Time) (events.Event, error) {
	priority := payload.Priority
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
	default:
		return events.Event{}, util.NewValidationError("unknown priority", map[string]any{"priority": string(priority)})
	}
	if priority == ticket.Priority {
		return events.Event{}, util.NewValidationError("priority unchanged", map[string]any{
			"ticket_id": ticket.ID,
			"priority":  string(priority),
		})
	}

	before := ticket.Status
	oldPriority := ticket.Priority
	ticket.Priority = priority

	// The deadline tracks priority only while the ticket has not gone
	// overdue; a missed deadline stays missed.
	recomputed := false
	if !ticket.Overdue {
		policy, err := s.policyFor(ctx, tx, ticket)
		if err != nil {
			return events.Event{}, err
		}
		anchor := ticket.CreatedAt
		if ticket.ReopenedAt != nil {
			anchor = *ticket.ReopenedAt
		}
		ticket.SLADeadline = policy.DeadlineFrom(anchor, priority)
		recomputed = true
	}
	ticket.UpdatedAt = now

	if err := s.updateTicket(ctx, tx, ticket, domain.OpSetPriority); err != nil {
		return events.Event{}, err
	}
	body := fmt.Sprintf("priority changed from %s to %s", oldPriority, priority)
	entry := transitionEntry(actor, withComment(body, payload.Comment))
	if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
		return events.Event{}, err
	}
	return s.newEvent(events.EventTicketPriorityChanged, ticket, actor, before, events.TicketPriorityChangedPayload{
		OldPriority:        oldPriority,
		NewPriority:        priority,
		DeadlineRecomputed: recomputed,
	}), nil
}

func (s *LifecycleService) applyStatusMove(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, op domain.Operation, payload Payload, now time.Time) (events.Event, error) {
	before := ticket.Status
	var eventType events.EventType

	switch op {
	case domain.OpPend:
		ticket.Status = domain.TicketStatusPending
		eventType = events.EventTicketPending
	case domain.OpResolve:
		ticket.Status = domain.TicketStatusResolved
		ticket.Answered = true
		eventType = events.EventTicketResolved
	case domain.OpClose:
		ticket.Status = domain.TicketStatusClosed
		closedAt := now
		ticket.ClosedAt = &closedAt
		eventType = events.EventTicketClosed
	case domain.OpReopen:
		policy, err := s.policyFor(ctx, tx, ticket)
		if err != nil {
			return events.Event{}, err
		}
		reopenedAt := now
		ticket.Status = domain.TicketStatusOpen
		ticket.ReopenedAt = &reopenedAt
		ticket.ClosedAt = nil
		ticket.Overdue = false
		ticket.Answered = false
		// The SLA clock restarts at the reopen, not at creation.
		ticket.SLADeadline = policy.DeadlineFrom(now, ticket.Priority)
		eventType = events.EventTicketReopened
	case domain.OpArchive:
		ticket.Status = domain.TicketStatusArchived
		eventType = events.EventTicketArchived
	case domain.OpUnarchive:
		if !s.engine.UnarchiveEnabled {
			return events.Event{}, util.NewPermissionDenied(string(op), actor.ID, map[string]any{
				"reason": "unarchive is disabled by configuration",
			})
		}
		ticket.Status = domain.TicketStatusClosed
		if ticket.ClosedAt == nil {
			closedAt := now
			ticket.ClosedAt = &closedAt
		}
		eventType = events.EventTicketUnarchived
	}
	ticket.UpdatedAt = now

	if err := s.updateTicket(ctx, tx, ticket, op); err != nil {
		return events.Event{}, err
	}
	body := fmt.Sprintf("status changed from %s to %s", before, ticket.Status)
	entry := transitionEntry(actor, withComment(body, payload.Comment))
	if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
		return events.Event{}, err
	}
	return s.newEvent(eventType, ticket, actor, before, events.TicketStatusChangedPayload{
		OldStatus: before,
		NewStatus: ticket.Status,
		Comment:   strings.TrimSpace(payload.Comment),
	}), nil
}

func (s *LifecycleService) applyDelete(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, now time.Time) (events.Event, error) {
	before := ticket.Status
	entries, err := tx.Threads().CountEntries(ctx, ticket.ID)
	if err != nil {
		return events.Event{}, err
	}
	if err := tx.Tickets().Delete(ctx, ticket.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return events.Event{}, util.NewConcurrencyConflict(ticket.ID, string(domain.OpDelete))
		}
		return events.Event{}, err
	}
	// The thread and its entries go with the ticket, so no entry is
	// appended; the event is the only trace.
	return events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventTicketDeleted,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		Actor:        events.Actor{Type: actor.Type, ID: actor.ID},
		BeforeStatus: before,
		Timestamp:    now,
		Payload: events.TicketDeletedPayload{
			Number:         ticket.Number,
			EntriesRemoved: entries,
		},
	}, nil
}

func (s *LifecycleService) applyMarkOverdue(ctx context.Context, tx repository.Store, ticket *domain.Ticket, actor domain.ActorContext, now time.Time) (events.Event, error) {
	if ticket.Overdue {
		return events.Event{}, util.NewDomainError(util.CodeInvalidTransition,
			fmt.Sprintf("ticket %s is already marked overdue", ticket.ID),
			map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.SLADeadline.After(now) {
		return events.Event{}, util.NewDomainError(util.CodeInvalidTransition,
			fmt.Sprintf("ticket %s has not passed its SLA deadline", ticket.ID),
			map[string]any{"ticket_id": ticket.ID, "sla_deadline": ticket.SLADeadline})
	}

	before := ticket.Status
	ticket.Overdue = true
	ticket.UpdatedAt = now

	if err := s.updateTicket(ctx, tx, ticket, domain.OpMarkOverdue); err != nil {
		return events.Event{}, err
	}
	entry := transitionEntry(actor, "SLA deadline passed")
	if err := s.appendEntry(ctx, tx, ticket, entry, now); err != nil {
		return events.Event{}, err
	}
	return s.newEvent(events.EventTicketOverdue, ticket, actor, before, events.TicketOverduePayload{
		SLAPolicyID: ticket.SLAPolicyID,
		SLADeadline: ticket.SLADeadline,
	}), nil
}

// commit runs fn inside a store transaction, retrying storage failures
// a bounded number of times with doubling backoff. Domain refusals
// surface immediately; they would fail the same way again.
func (s *LifecycleService) commit(ctx context.Context, op domain.Operation, fn func(repository.Store) error) error {
	attempts := s.engine.StorageRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := s.engine.RetryBackoff()

	var err error
	for attempt := 1; ; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if err == nil || isDomainRefusal(err) {
			break
		}
		if attempt >= attempts || ctx.Err() != nil {
			break
		}
		s.logger.Warn("commit failed, retrying",
			zap.String("operation", string(op)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clk.After(backoff):
		}
		backoff *= 2
	}
	if err == nil {
		return nil
	}
	if util.IsCode(err, util.CodeConcurrencyConflict) {
		s.logger.Error("write conflict despite the per-ticket lock",
			zap.String("operation", string(op)),
			zap.Error(err))
		return err
	}
	if isDomainRefusal(err) {
		return err
	}
	return util.NewStorageFailure(err, map[string]any{"operation": string(op)})
}

// afterCommit runs while the per-ticket lock is still held, so cache
// invalidation and event publication follow commit order per ticket.
func (s *LifecycleService) afterCommit(ctx context.Context, op domain.Operation, ticketID string, event events.Event) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, ticketID)
	}
	if s.bus != nil {
		s.bus.Publish(event)
		s.metrics.RecordPublished()
	}
	s.metrics.RecordTransition(string(op))
	s.logger.Info("ticket transition committed",
		zap.String("operation", string(op)),
		zap.String("ticket_id", ticketID),
		zap.String("event_type", string(event.Type)),
		zap.String("before_status", string(event.BeforeStatus)),
		zap.String("after_status", string(event.AfterStatus)))
}

func (s *LifecycleService) updateTicket(ctx context.Context, tx repository.Store, ticket *domain.Ticket, op domain.Operation) error {
	if err := tx.Tickets().Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return util.NewConcurrencyConflict(ticket.ID, string(op))
		}
		return err
	}
	return nil
}

// appendEntry claims the next sequence number and inserts the entry,
// all inside the owning transaction. Every successful operation except
// delete appends exactly one entry through here.
func (s *LifecycleService) appendEntry(ctx context.Context, tx repository.Store, ticket *domain.Ticket, entry *domain.ThreadEntry, now time.Time) error {
	thread, err := tx.Threads().GetByTicketID(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return util.NewConcurrencyConflict(ticket.ID, "append-entry")
		}
		return err
	}
	seq, err := tx.Threads().ClaimNextSeq(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return util.NewConcurrencyConflict(ticket.ID, "append-entry")
		}
		return err
	}
	entry.ID = uuid.NewString()
	entry.ThreadID = thread.ID
	entry.TicketID = ticket.ID
	entry.Seq = seq
	entry.CreatedAt = now
	return tx.Threads().AppendEntry(ctx, entry)
}

func (s *LifecycleService) policyFor(ctx context.Context, tx repository.Store, ticket *domain.Ticket) (*domain.SLAPolicy, error) {
	policy, err := tx.SLAPolicies().GetByID(ctx, ticket.SLAPolicyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewNotFound("sla policy", map[string]any{"sla_policy_id": ticket.SLAPolicyID})
		}
		return nil, err
	}
	return policy, nil
}

func (s *LifecycleService) newEvent(eventType events.EventType, ticket *domain.Ticket, actor domain.ActorContext, before domain.TicketStatus, payload any) events.Event {
	return events.Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number,
		Actor:        events.Actor{Type: actor.Type, ID: actor.ID},
		BeforeStatus: before,
		AfterStatus:  ticket.Status,
		Timestamp:    s.clk.Now(),
		Payload:      payload,
	}
}

func (s *LifecycleService) sequenceName() string {
	if s.engine.SequenceName != "" {
		return s.engine.SequenceName
	}
	return domain.DefaultSequenceName
}

func transferDestination(op domain.Operation, payload Payload) string {
	if op != domain.OpTransfer {
		return ""
	}
	return strings.TrimSpace(payload.DepartmentID)
}

func isDomainRefusal(err error) bool {
	var domainErr *util.DomainError
	return errors.As(err, &domainErr)
}

func transitionEntry(actor domain.ActorContext, body string) *domain.ThreadEntry {
	return &domain.ThreadEntry{
		Type:       domain.EntryTypeSystem,
		AuthorType: actor.Type,
		AuthorID:   authorID(actor),
		Body:       body,
		Visibility: domain.VisibilityInternal,
	}
}

func authorID(actor domain.ActorContext) *string {
	if actor.Type == domain.ActorTypeSystem {
		return nil
	}
	id := actor.ID
	return &id
}

func assignmentBody(res *ResolvedAssignment) string {
	switch {
	case res.AssigneeID != nil:
		return fmt.Sprintf("assigned to staff %s", *res.AssigneeID)
	case res.TeamID != nil:
		return fmt.Sprintf("assigned to team %s", *res.TeamID)
	default:
		return fmt.Sprintf("routed to department queue %s", res.DepartmentID)
	}
}

func withComment(body, comment string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return body
	}
	return body + ": " + comment
}

func buildAttachments(inputs []AttachmentInput, now time.Time) []domain.AttachmentReference {
	if len(inputs) == 0 {
		return nil
	}
	refs := make([]domain.AttachmentReference, 0, len(inputs))
	for _, in := range inputs {
		refs = append(refs, domain.AttachmentReference{
			ID:         uuid.NewString(),
			StorageKey: in.StorageKey,
			FileName:   in.FileName,
			MimeType:   in.MimeType,
			SizeBytes:  in.SizeBytes,
			CreatedAt:  now,
		})
	}
	return refs
}

func bodyPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
