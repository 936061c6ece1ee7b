// Package chat implements message ingestion, history and fan-out for the
// shared channel. Persistence and delivery are reached through MessageStore
// and Broadcaster; the service itself keeps no mutable state.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"nexus-chat/internal/models"
)

const (
	Channel         = "chat"
	EventNewMessage = "new-message"
)

// Identity is the caller as resolved by the identity provider.
type Identity struct {
	UserID      string
	DisplayName string
}

type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	List(ctx context.Context) ([]models.Message, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// BroadcastPolicy decides what a publish error after a successful write
// means for the caller. The write is never rolled back.
type BroadcastPolicy int

const (
	// Degrade logs the failure and reports success.
	Degrade BroadcastPolicy = iota
	// Fail reports ErrBroadcast to the caller.
	Fail
)

func ParseBroadcastPolicy(s string) (BroadcastPolicy, error) {
	switch s {
	case "", "degrade":
		return Degrade, nil
	case "fail":
		return Fail, nil
	default:
		return Degrade, fmt.Errorf("unknown broadcast failure policy %q", s)
	}
}

type Service struct {
	store            MessageStore
	broadcaster      Broadcaster
	log              *slog.Logger
	policy           BroadcastPolicy
	maxContentLength int
}

type Option func(*Service)

func WithBroadcastPolicy(p BroadcastPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithMaxContentLength caps content length in runes. Zero disables the cap.
func WithMaxContentLength(n int) Option {
	return func(s *Service) { s.maxContentLength = n }
}

func NewService(store MessageStore, broadcaster Broadcaster, log *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, broadcaster: broadcaster, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post persists content authored by id, then publishes the stored message
// on Channel. The returned message carries the store-assigned ID and
// CreatedAt.
func (s *Service) Post(ctx context.Context, id *Identity, content string) (models.Message, error) {
	if id == nil || id.UserID == "" {
		return models.Message{}, ErrUnauthorized
	}
	if err := s.validate(content); err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		Content:  content,
		UserID:   id.UserID,
		UserName: id.DisplayName,
	}
	if err := s.store.Create(ctx, &msg); err != nil {
		return models.Message{}, fmt.Errorf("%w: %w", ErrStore, err)
	}

	if err := s.broadcaster.Publish(ctx, Channel, EventNewMessage, msg); err != nil {
		s.log.ErrorContext(ctx, "publish after write failed",
			"message_id", msg.ID, "channel", Channel, "error", err)
		if s.policy == Fail {
			return msg, fmt.Errorf("%w: %w", ErrBroadcast, err)
		}
	}
	return msg, nil
}

// History returns every persisted message ordered by CreatedAt.
func (s *Service) History(ctx context.Context) ([]models.Message, error) {
	msgs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (s *Service) validate(content string) error {
	if content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidContent)
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidContent, s.maxContentLength)
	}
	return nil
}
