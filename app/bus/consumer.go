package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/config"
)

var (
	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presenced_bus_events_received_total",
		Help: "Number of bus events received, by event name",
	}, []string{"event"})
	eventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presenced_bus_events_failed_total",
		Help: "Number of bus events whose handler returned an error, by event name",
	}, []string{"event"})
)

// HandlerFunc processes one event body. A returned error is logged and
// counted; the message is never redelivered.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer reads platform events from a headers exchange and dispatches them
// to registered handlers. Delivery is at-most-once: messages are acked on
// receipt, a failing handler drops the event.
type Consumer struct {
	config   *config.BusConfig
	status   *businessflow.StatusAggregator
	logger   *zap.Logger
	handlers map[string]HandlerFunc
}

// NewConsumer creates a bus consumer with an empty routing table
func NewConsumer(cfg *config.BusConfig, status *businessflow.StatusAggregator, logger *zap.Logger) *Consumer {
	return &Consumer{
		config:   cfg,
		status:   status,
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Subscribe binds an event name to its handler. The routing table is fixed
// before Start and never changes afterwards.
func (c *Consumer) Subscribe(event string, handler HandlerFunc) {
	c.handlers[event] = handler
}

// Start consumes in the background and returns a stop function. The consumer
// reconnects forever until stopped.
func (c *Consumer) Start(ctx context.Context) func() {
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if err := c.run(runCtx); err != nil {
				c.status.SetFail(businessflow.ComponentBusConsumer)
				c.logger.Warn("bus consumer disconnected", zap.Error(err))
			}
			select {
			case <-runCtx.Done():
				return
			case <-time.After(c.config.ReconnectBackoff):
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// run holds one connection until it breaks or the context ends
func (c *Consumer) run(ctx context.Context) error {
	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.config.Exchange, c.config.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Exclusive auto-delete queue: state is rebuilt by the initiator after a
	// gap, so there is no value in retaining messages across restarts.
	queue, err := ch.QueueDeclare(c.config.Queue, false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for event := range c.handlers {
		args := amqp.Table{"x-match": "all", "name": event}
		if err := ch.QueueBind(queue.Name, "", c.config.Exchange, false, args); err != nil {
			return fmt.Errorf("failed to bind queue for %s: %w", event, err)
		}
	}

	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.status.SetOK(businessflow.ComponentBusConsumer)
	c.logger.Info("bus consumer connected",
		zap.String("exchange", c.config.Exchange),
		zap.Int("subscriptions", len(c.handlers)))

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return fmt.Errorf("connection closed")
			}
			return fmt.Errorf("connection closed: %w", amqpErr)
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.dispatch(ctx, delivery)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, delivery amqp.Delivery) {
	// At-most-once: ack before handling.
	if err := delivery.Ack(false); err != nil {
		c.logger.Warn("failed to ack delivery", zap.Error(err))
	}

	name, _ := delivery.Headers["name"].(string)
	handler, ok := c.handlers[name]
	if !ok {
		return
	}
	eventsReceived.WithLabelValues(name).Inc()

	if err := handler(ctx, delivery.Body); err != nil {
		eventsFailed.WithLabelValues(name).Inc()
		if businessflow.IsUnknownEntity(err) {
			c.logger.Debug("event referenced unknown entity",
				zap.String("event", name),
				zap.Error(err))
			return
		}
		c.logger.Error("event handler failed",
			zap.String("event", name),
			zap.Error(err))
	}
}
