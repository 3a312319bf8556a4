package service

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

func TestOperationAllowedSourceSets(t *testing.T) {
	cases := []struct {
		op      domain.Operation
		status  domain.TicketStatus
		allowed bool
	}{
		{domain.OpReply, domain.TicketStatusNew, true},
		{domain.OpReply, domain.TicketStatusPending, true},
		{domain.OpReply, domain.TicketStatusResolved, false},
		{domain.OpReply, domain.TicketStatusArchived, false},
		{domain.OpNote, domain.TicketStatusResolved, true},
		{domain.OpNote, domain.TicketStatusClosed, false},
		{domain.OpAssign, domain.TicketStatusAssigned, true},
		{domain.OpAssign, domain.TicketStatusClosed, false},
		{domain.OpTransfer, domain.TicketStatusOpen, true},
		{domain.OpTransfer, domain.TicketStatusResolved, false},
		{domain.OpSetPriority, domain.TicketStatusPending, true},
		{domain.OpSetPriority, domain.TicketStatusArchived, false},
		{domain.OpPend, domain.TicketStatusOpen, true},
		{domain.OpPend, domain.TicketStatusNew, false},
		{domain.OpResolve, domain.TicketStatusPending, true},
		{domain.OpResolve, domain.TicketStatusNew, false},
		{domain.OpClose, domain.TicketStatusResolved, true},
		{domain.OpClose, domain.TicketStatusNew, false},
		{domain.OpClose, domain.TicketStatusClosed, false},
		{domain.OpReopen, domain.TicketStatusResolved, true},
		{domain.OpReopen, domain.TicketStatusClosed, true},
		{domain.OpReopen, domain.TicketStatusOpen, false},
		{domain.OpReopen, domain.TicketStatusArchived, false},
		{domain.OpArchive, domain.TicketStatusNew, true},
		{domain.OpArchive, domain.TicketStatusClosed, true},
		{domain.OpArchive, domain.TicketStatusArchived, false},
		{domain.OpUnarchive, domain.TicketStatusArchived, true},
		{domain.OpUnarchive, domain.TicketStatusClosed, false},
		{domain.OpDelete, domain.TicketStatusNew, true},
		{domain.OpDelete, domain.TicketStatusArchived, true},
		{domain.OpMarkOverdue, domain.TicketStatusAssigned, true},
		{domain.OpMarkOverdue, domain.TicketStatusResolved, false},
		{domain.OpCreate, domain.TicketStatusNew, false},
	}

	for _, tc := range cases {
		gt.Value(t, operationAllowed(tc.op, tc.status)).Equal(tc.allowed)
	}
}

func TestEveryStatusHasAnExit(t *testing.T) {
	statuses := []domain.TicketStatus{
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
		domain.TicketStatusArchived,
	}
	for _, status := range statuses {
		found := false
		for op := range allowedSources {
			if operationAllowed(op, status) {
				found = true
				break
			}
		}
		gt.Bool(t, found).True()
	}
}
