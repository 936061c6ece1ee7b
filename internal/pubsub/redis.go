// Package pubsub carries broadcast events between server instances over
// Redis pub/sub. Redis does not retain published events, so delivery has
// the same no-replay semantics as the local hub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Sink receives relayed events, typically the local websocket hub.
type Sink interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

type RedisBroadcaster struct {
	rdb    *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisBroadcaster(rdb *redis.Client, prefix string, log *slog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, prefix: prefix, log: log}
}

func (b *RedisBroadcaster) topic(channel string) string {
	if b.prefix == "" {
		return channel
	}
	return b.prefix + ":" + channel
}

func (b *RedisBroadcaster) channelOf(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return strings.TrimPrefix(topic, b.prefix+":")
}

// Publish sends the event to every instance subscribed to channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	body, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.topic(channel), body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Relay forwards events published on channels into sink until ctx is done.
// ready, when non-nil, is closed once the subscription is confirmed.
func (b *RedisBroadcaster) Relay(ctx context.Context, sink Sink, ready chan<- struct{}, channels ...string) error {
	topics := make([]string, 0, len(channels))
	for _, ch := range channels {
		topics = append(topics, b.topic(ch))
	}

	sub := b.rdb.Subscribe(ctx, topics...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	b.log.Info("relaying redis broadcasts", "topics", topics)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				b.log.Warn("dropping malformed broadcast", "topic", m.Channel, "error", err)
				continue
			}
			if err := sink.Publish(ctx, b.channelOf(m.Channel), env.Event, env.Data); err != nil {
				b.log.Warn("relay to local subscribers failed", "topic", m.Channel, "error", err)
			}
		}
	}
}
