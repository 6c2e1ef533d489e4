package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

// DefaultChannel is the Redis Pub/Sub channel session events travel on.
const DefaultChannel = "quiz:events"

// Publisher fans a message out to a hub group.
type Publisher interface {
	Publish(ctx context.Context, group string, msg ws.Message) error
}

// HubPublisher writes straight into the local hub.
type HubPublisher struct {
	hub *ws.Hub
}

func NewHubPublisher(hub *ws.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, group string, msg ws.Message) error {
	return p.hub.Broadcast(group, msg)
}

// envelope is what travels over Pub/Sub.
type envelope struct {
	Group   string     `json:"group"`
	Message ws.Message `json:"message"`
}

// RedisPublisher sends messages through Pub/Sub so every server instance's
// Relay delivers them to its own connections.
type RedisPublisher struct {
	redis   *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{redis: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, group string, msg ws.Message) error {
	data, err := json.Marshal(envelope{Group: group, Message: msg})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Relay listens for published session events and forwards them to the hub.
type Relay struct {
	redis   *redis.Client
	hub     *ws.Hub
	channel string
	logger  zerolog.Logger
	ready   chan struct{}
}

func NewRelay(client *redis.Client, hub *ws.Hub, channel string, logger zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		redis:   client,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "session_relay").Logger(),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes to the channel and blocks until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.redis == nil || r.hub == nil {
		return nil
	}

	sub := r.redis.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(msg.Payload)
		}
	}
}

func (r *Relay) forward(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn().Err(err).Msg("failed to decode session event")
		return
	}
	if env.Group == "" {
		_ = r.hub.BroadcastAll(env.Message)
		return
	}
	_ = r.hub.Broadcast(env.Group, env.Message)
}
