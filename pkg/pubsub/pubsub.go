/*
Package pubsub carries configuration change events between the control
plane and the monitoring workers.

Every committed write to a monitor, network, or trigger publishes one
event on the entity's channel plus the catch-all config channel. Delivery
is fire-and-forget: workers that miss an event reconcile from the cache
and database on their next read, so a publish failure is logged and
swallowed rather than surfaced to the API caller.
*/
package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/cache"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/metrics"
)

// Channels for configuration change events.
const (
	ChannelConfig  = "blip0:config:update"
	ChannelMonitor = "blip0:monitor:update"
	ChannelNetwork = "blip0:network:update"
	ChannelTrigger = "blip0:trigger:update"
)

// Actions carried in change events. Lifecycle operations that modify an
// entity in place (pause, resume, validate) travel as updates; a cache-wide
// refresh travels as invalidate_all.
const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionInvalidateAll = "invalidate_all"
)

// Event is one configuration change notification. Exactly one of the
// entity id fields is set, matching the channel it travels on; refresh
// events on the config channel carry none.
type Event struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	Action    string     `json:"action"`
	MonitorID *uuid.UUID `json:"monitor_id,omitempty"`
	NetworkID *uuid.UUID `json:"network_id,omitempty"`
	TriggerID *uuid.UUID `json:"trigger_id,omitempty"`
	TS        time.Time  `json:"ts"`
}

// Publisher emits change events over the cache store's pub/sub.
type Publisher struct {
	cache  *cache.Client
	logger zerolog.Logger
}

// NewPublisher creates a publisher over the shared cache client.
func NewPublisher(c *cache.Client) *Publisher {
	return &Publisher{
		cache:  c,
		logger: log.WithComponent("pubsub"),
	}
}

// Publish sends the event on its channel and mirrors it on the config
// channel. Failures are logged and dropped.
func (p *Publisher) Publish(ctx context.Context, channel string, event Event) {
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}
	channels := []string{channel}
	if channel != ChannelConfig {
		channels = append(channels, ChannelConfig)
	}
	for _, ch := range channels {
		receivers, err := p.cache.Publish(ctx, ch, event)
		if err != nil {
			p.logger.Warn().Err(err).
				Str("channel", ch).
				Str("action", event.Action).
				Msg("event publish failed; workers will reconcile on next read")
			continue
		}
		metrics.EventsPublished.WithLabelValues(ch).Inc()
		p.logger.Debug().
			Str("channel", ch).
			Str("action", event.Action).
			Str("tenant_id", event.TenantID.String()).
			Int64("receivers", receivers).
			Msg("event published")
	}
}

// MonitorEvent publishes a monitor change.
func (p *Publisher) MonitorEvent(ctx context.Context, tenantID, monitorID uuid.UUID, action string) {
	p.Publish(ctx, ChannelMonitor, Event{TenantID: tenantID, Action: action, MonitorID: &monitorID})
}

// NetworkEvent publishes a network change.
func (p *Publisher) NetworkEvent(ctx context.Context, tenantID, networkID uuid.UUID, action string) {
	p.Publish(ctx, ChannelNetwork, Event{TenantID: tenantID, Action: action, NetworkID: &networkID})
}

// TriggerEvent publishes a trigger change.
func (p *Publisher) TriggerEvent(ctx context.Context, tenantID, triggerID uuid.UUID, action string) {
	p.Publish(ctx, ChannelTrigger, Event{TenantID: tenantID, Action: action, TriggerID: &triggerID})
}

// ConfigEvent publishes a tenant-wide change on the config channel only.
func (p *Publisher) ConfigEvent(ctx context.Context, tenantID uuid.UUID, action string) {
	p.Publish(ctx, ChannelConfig, Event{TenantID: tenantID, Action: action})
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, event Event)

// Consumer subscribes to change channels and dispatches decoded events to
// registered handlers. Malformed payloads and unregistered channels are
// logged and dropped.
type Consumer struct {
	cache    *cache.Client
	logger   zerolog.Logger
	handlers map[string]Handler

	mu     sync.Mutex
	sub    *redis.PubSub
	done   chan struct{}
	closed bool
}

// NewConsumer creates a consumer with no subscriptions yet.
func NewConsumer(c *cache.Client) *Consumer {
	return &Consumer{
		cache:    c,
		logger:   log.WithComponent("pubsub"),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for a channel. Must be called before Start.
func (c *Consumer) Handle(channel string, h Handler) {
	c.handlers[channel] = h
}

// Start subscribes to all registered channels and dispatches in a
// background goroutine until Close or context cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	channels := make([]string, 0, len(c.handlers))
	for ch := range c.handlers {
		channels = append(channels, ch)
	}

	sub := c.cache.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	c.mu.Lock()
	c.sub = sub
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx, sub)
	c.logger.Info().Strs("channels", channels).Msg("consumer started")
	return nil
}

func (c *Consumer) run(ctx context.Context, sub *redis.PubSub) {
	defer close(c.done)
	for {
		msg, err := sub.ReceiveTimeout(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return
			}
			// Poll timeout; check for shutdown and keep receiving.
			continue
		}
		m, ok := msg.(*redis.Message)
		if !ok {
			continue
		}
		c.dispatch(ctx, m)
	}
}

func (c *Consumer) dispatch(ctx context.Context, m *redis.Message) {
	h, ok := c.handlers[m.Channel]
	if !ok {
		c.logger.Warn().Str("channel", m.Channel).Msg("message on unhandled channel dropped")
		return
	}
	var event Event
	if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
		c.logger.Warn().Err(err).Str("channel", m.Channel).Msg("malformed event dropped")
		return
	}
	h(ctx, event)
}

func (c *Consumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close unsubscribes and waits up to five seconds for the dispatch loop
// to drain.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed || c.sub == nil {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub, done := c.sub, c.done
	c.mu.Unlock()

	err := sub.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.logger.Warn().Msg("consumer did not drain before deadline")
	}
	return err
}
