package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/clock"
	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// EscalationWorker periodically scans for tickets whose SLA deadline
// has passed and routes mark-overdue operations through the lifecycle
// service as the system actor. The scan holds no state between passes:
// a ticket that fails or times out is still overdue on the next pass,
// which is what makes the worker restart-safe.
type EscalationWorker struct {
	store     repository.Store
	lifecycle *service.LifecycleService
	clk       clock.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
	cfg       config.EscalationConfig

	scheduler *cron.Cron
	running   atomic.Bool
}

// EscalationDependencies bundles collaborators for the worker.
type EscalationDependencies struct {
	Store     repository.Store
	Lifecycle *service.LifecycleService
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Config    config.EscalationConfig
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(deps EscalationDependencies) *EscalationWorker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &EscalationWorker{
		store:     deps.Store,
		lifecycle: deps.Lifecycle,
		clk:       clk,
		logger:    logger,
		metrics:   deps.Metrics,
		cfg:       deps.Config,
	}
}

// Start schedules the scan at the configured interval.
func (w *EscalationWorker) Start() error {
	w.scheduler = cron.New()
	schedule := fmt.Sprintf("@every %s", w.cfg.Interval())
	if _, err := w.scheduler.AddFunc(schedule, func() {
		if _, err := w.RunOnce(context.Background()); err != nil {
			w.logger.Error("escalation pass failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	w.scheduler.Start()
	w.logger.Info("escalation worker started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler and waits for a pass in flight.
func (w *EscalationWorker) Stop() {
	if w.scheduler == nil {
		return
	}
	ctx := w.scheduler.Stop()
	<-ctx.Done()
	w.logger.Info("escalation worker stopped")
}

// RunOnce performs a single scan. Each candidate gets its own bounded
// timeout; a slow or failing ticket is abandoned until the next pass.
// Returns how many tickets were marked overdue.
func (w *EscalationWorker) RunOnce(ctx context.Context) (int, error) {
	if !w.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer w.running.Store(false)

	now := w.clk.Now()
	candidates, err := w.store.Tickets().ListOverdueCandidates(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	marked := 0
	for i := range candidates {
		ticket := &candidates[i]
		if err := w.escalate(ctx, ticket); err != nil {
			// INVALID_TRANSITION means another pass or operation got
			// there first; anything else is retried next pass.
			if !util.IsCode(err, util.CodeInvalidTransition) {
				w.logger.Warn("escalation skipped ticket",
					zap.String("ticket_id", ticket.ID),
					zap.Error(err))
			}
			continue
		}
		marked++
		w.metrics.RecordEscalation()
	}
	if marked > 0 {
		w.logger.Info("escalation pass complete",
			zap.Int("candidates", len(candidates)),
			zap.Int("marked", marked))
	}
	return marked, nil
}

func (w *EscalationWorker) escalate(ctx context.Context, ticket *domain.Ticket) error {
	opCtx, cancel := context.WithTimeout(ctx, w.cfg.OpTimeout())
	defer cancel()
	if _, err := w.lifecycle.Apply(opCtx, ticket.ID, domain.SystemActor(), domain.OpMarkOverdue, service.Payload{}); err != nil {
		return err
	}

	// Optionally hand the overdue ticket to a designated escalation
	// department. Marking already succeeded; a failed transfer is only
	// logged since the overdue flag will not re-trigger it.
	dest := w.cfg.TransferDepartmentID
	if dest == "" || dest == ticket.DepartmentID {
		return nil
	}
	transferCtx, cancelTransfer := context.WithTimeout(ctx, w.cfg.OpTimeout())
	defer cancelTransfer()
	if _, err := w.lifecycle.Apply(transferCtx, ticket.ID, domain.SystemActor(), domain.OpTransfer, service.Payload{
		DepartmentID: dest,
		Comment:      "escalated after missed SLA deadline",
	}); err != nil {
		w.logger.Warn("escalation transfer failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("department_id", dest),
			zap.Error(err))
	}
	return nil
}
