package domain

// Operation names a permission-gated lifecycle transition. Every
// mutation of a ticket happens as exactly one named operation.
type Operation string

const (
	OpCreate      Operation = "create"
	OpReply       Operation = "reply"
	OpNote        Operation = "note"
	OpAssign      Operation = "assign"
	OpTransfer    Operation = "transfer"
	OpSetPriority Operation = "set-priority"
	OpPend        Operation = "pend"
	OpResolve     Operation = "resolve"
	OpClose       Operation = "close"
	OpReopen      Operation = "reopen"
	OpArchive     Operation = "archive"
	OpUnarchive   Operation = "unarchive"
	OpDelete      Operation = "delete"
	OpMarkOverdue Operation = "mark-overdue"
)
