package service

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
)

// NotificationService turns committed ticket events into outbound
// notifications. It drains its bus subscription on a dedicated
// goroutine, so a slow notification sink costs events per the bus drop
// policy but never delays a transition.
type NotificationService struct {
	bus     *events.Bus
	logger  *zap.Logger
	cfg     config.NotificationConfig
	metrics *observability.Metrics

	mu   sync.Mutex
	sub  *events.Subscription
	done chan struct{}
}

// NewNotificationService creates the service.
func NewNotificationService(bus *events.Bus, logger *zap.Logger, cfg config.NotificationConfig, metrics *observability.Metrics) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		bus:     bus,
		logger:  logger,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Start subscribes to the bus and begins draining events. Calling
// Start twice is a no-op.
func (n *NotificationService) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub != nil || n.bus == nil {
		return
	}
	n.sub = n.bus.Subscribe(events.Filter{Types: []events.EventType{
		events.EventTicketCreated,
		events.EventTicketReplied,
		events.EventTicketAssigned,
		events.EventTicketTransferred,
		events.EventTicketResolved,
		events.EventTicketClosed,
		events.EventTicketReopened,
		events.EventTicketOverdue,
	}})
	n.done = make(chan struct{})
	go n.drain(n.sub, n.done)
}

// Stop detaches from the bus and waits for the drain goroutine.
func (n *NotificationService) Stop() {
	n.mu.Lock()
	sub, done := n.sub, n.done
	n.sub, n.done = nil, nil
	n.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Close()
	<-done
	if dropped := sub.Dropped(); dropped > 0 {
		n.metrics.RecordDropped(dropped)
		n.logger.Warn("notifications lost to subscriber backlog", zap.Int64("count", dropped))
	}
}

func (n *NotificationService) drain(sub *events.Subscription, done chan struct{}) {
	defer close(done)
	for event := range sub.C() {
		n.handle(event)
	}
}

func (n *NotificationService) handle(event events.Event) {
	n.logger.Info("notification",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("ticket_number", event.TicketNumber),
		zap.String("actor_id", event.Actor.ID))

	switch event.Type {
	case events.EventTicketCreated, events.EventTicketReplied, events.EventTicketReopened:
		n.sendEmailNotificationStub(event)
	}
	n.sendWebhookNotificationStub(event)
}

func (n *NotificationService) sendEmailNotificationStub(event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
