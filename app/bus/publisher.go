package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	businessflow "github.com/callwatch/presenced/business_flow"
	"github.com/callwatch/presenced/config"
	"github.com/callwatch/presenced/models"
)

// Teams federation lifecycle events
const (
	EventTeamsSyncStarted = "user_teams_presence_synchronization_started"
	EventTeamsSyncStopped = "user_teams_presence_synchronization_stopped"
)

// eventEnvelope is the wire format shared by every bus event: the payload
// rides in a top-level data field next to the event name.
type eventEnvelope struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "presenced_bus_events_published_total",
	Help: "Number of events published to the bus, by event name",
}, []string{"event"})

// Publisher broadcasts presence updates on the headers exchange. It
// implements businessflow.Notifier.
type Publisher struct {
	config      *config.BusConfig
	cache       *redis.Client
	cachePrefix string
	logger      *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a bus publisher. cache may be nil.
func NewPublisher(cfg *config.BusConfig, cache *redis.Client, cachePrefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		config:      cfg,
		cache:       cache,
		cachePrefix: cachePrefix,
		logger:      logger,
	}
}

// PresenceUpdated broadcasts the user's full presence document and drops its
// cache entry, so every read after the event sees the new state.
func (p *Publisher) PresenceUpdated(ctx context.Context, user models.User) error {
	p.invalidate(ctx, user.UUID)

	payload := businessflow.ToUserPresenceDTO(user)
	routingKey := fmt.Sprintf("chatd.users.%s.presences.updated", user.UUID)
	return p.publish(ctx, EventPresenceUpdated, routingKey, user.TenantUUID, user.UUID, payload)
}

// TeamsSyncStarted announces that Teams presence federation began for a user
func (p *Publisher) TeamsSyncStarted(ctx context.Context, userUUID, tenantUUID uuid.UUID) error {
	routingKey := fmt.Sprintf("chatd.users.%s.teams_presence.started", userUUID)
	payload := map[string]string{"user_uuid": userUUID.String(), "tenant_uuid": tenantUUID.String()}
	return p.publish(ctx, EventTeamsSyncStarted, routingKey, tenantUUID, userUUID, payload)
}

// TeamsSyncStopped announces that Teams presence federation ended for a user
func (p *Publisher) TeamsSyncStopped(ctx context.Context, userUUID, tenantUUID uuid.UUID) error {
	routingKey := fmt.Sprintf("chatd.users.%s.teams_presence.stopped", userUUID)
	payload := map[string]string{"user_uuid": userUUID.String(), "tenant_uuid": tenantUUID.String()}
	return p.publish(ctx, EventTeamsSyncStopped, routingKey, tenantUUID, userUUID, payload)
}

// Close tears down the AMQP connection
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) publish(ctx context.Context, event, routingKey string, tenantUUID, userUUID uuid.UUID, payload any) error {
	body, err := json.Marshal(eventEnvelope{Name: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Headers: amqp.Table{
			"name":                        event,
			"tenant_uuid":                 tenantUUID.String(),
			"user_uuid:" + userUUID.String(): true,
		},
	}

	err = p.withChannel(func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, p.config.Exchange, routingKey, false, false, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}

	eventsPublished.WithLabelValues(event).Inc()
	return nil
}

// withChannel runs fn on the shared channel, reconnecting once after a
// failure before giving up.
func (p *Publisher) withChannel(fn func(*amqp.Channel) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if p.ch == nil {
			if err := p.connect(); err != nil {
				return err
			}
		}
		if err := fn(p.ch); err != nil {
			p.teardown()
			continue
		}
		return nil
	}
	return fmt.Errorf("publish failed after reconnect")
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.config.Exchange, p.config.ExchangeType, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *Publisher) teardown() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) invalidate(ctx context.Context, userUUID uuid.UUID) {
	if p.cache == nil {
		return
	}
	key := p.cachePrefix + "presence:" + userUUID.String()
	if err := p.cache.Del(ctx, key).Err(); err != nil {
		p.logger.Debug("presence cache invalidation failed", zap.Error(err))
	}
}
