package service

import "github.com/spec-kit/helpdesk-engine/internal/domain"

// allowedSources maps each operation to the statuses it may legally
// start from. Create is absent: it has no source ticket. An operation
// applied outside its source set fails with INVALID_TRANSITION before
// permissions are even consulted.
var allowedSources = map[domain.Operation][]domain.TicketStatus{
	domain.OpReply: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
	},
	domain.OpNote: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
		domain.TicketStatusResolved,
	},
	domain.OpAssign: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
	},
	domain.OpTransfer: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
	},
	domain.OpSetPriority: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
	},
	domain.OpPend: {
		domain.TicketStatusOpen,
		domain.TicketStatusAssigned,
	},
	domain.OpResolve: {
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
	},
	domain.OpClose: {
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
		domain.TicketStatusResolved,
	},
	domain.OpReopen: {
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	},
	domain.OpArchive: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	},
	domain.OpUnarchive: {
		domain.TicketStatusArchived,
	},
	domain.OpDelete: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
		domain.TicketStatusArchived,
	},
	domain.OpMarkOverdue: {
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusPending,
		domain.TicketStatusAssigned,
	},
}

func operationAllowed(op domain.Operation, current domain.TicketStatus) bool {
	for _, candidate := range allowedSources[op] {
		if candidate == current {
			return true
		}
	}
	return false
}
