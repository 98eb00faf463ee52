package subscriber

import (
	"chat-relay/internal/chat"
	"context"
	"encoding/json"
	"fmt"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

// Subscriber relays announcements published on a Redis channel into the
// chat as ordinary messages.
type Subscriber struct {
	logger    *slog.Logger
	client    *redis.Client
	topic     string
	registry  chat.Submitter
	announcer chat.Identity
}

func NewSubscriber(logger *slog.Logger, client *redis.Client, topic string, registry chat.Submitter, announcer string) *Subscriber {
	return &Subscriber{
		logger,
		client,
		topic,
		registry,
		chat.Identity(announcer),
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info("Redis subscriber is running", "topic", s.topic)
	pubsub := s.client.Subscribe(ctx, s.topic)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.logger.Warn("failed to close pubsub", "error", err)
		}
	}()

	msgCh := pubsub.Channel()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				s.logger.Warn("pubsub channel closed by Redis")
				return nil
			}
			if err := s.handleMessage(msg.Payload); err != nil {
				s.logger.Error("error handling message", "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("shutting down Redis subscriber")
			return nil
		}
	}
}

func (s *Subscriber) handleMessage(payload string) error {
	var announcement Announcement
	if err := json.Unmarshal([]byte(payload), &announcement); err != nil {
		return fmt.Errorf("unmarshalling announcement: %w", err)
	}
	if err := announcement.Validate(); err != nil {
		return fmt.Errorf("invalid announcement: %w", err)
	}

	author := s.announcer
	if announcement.Author != "" {
		author = chat.Identity(announcement.Author)
	}
	s.logger.Debug("received announcement", "author", author)
	s.registry.Submit(chat.MessageSent{Author: author, Content: announcement.Content})
	return nil
}
