// Package notify delivers escalations raised by cascades and detectors.
// Delivery confirmation is never required by callers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/ops_backend/config"
)

// Channels used by the cascade layer.
const (
	ChannelExecutive = "executive"
	ChannelManager   = "manager"
	ChannelHR        = "hr"
	ChannelTeam      = "team"
	ChannelQuality   = "quality"
	ChannelSupply    = "supply-chain"
)

type Notifier interface {
	Notify(ctx context.Context, channel string, payload map[string]any) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, map[string]any) error { return nil }

type LogNotifier struct {
	Logger *logrus.Logger
}

func (n LogNotifier) Notify(_ context.Context, channel string, payload map[string]any) error {
	logger := n.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	logger.WithFields(logrus.Fields{
		"channel": channel,
		"payload": payload,
	}).Info("notification")
	return nil
}

// Publisher is the part of a Pub/Sub topic the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// TopicPublisher publishes to a Pub/Sub topic and waits for the server id.
type TopicPublisher struct {
	Topic *pubsub.Topic
}

func (p TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := p.Topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	return result.Get(ctx)
}

type PubSubNotifier struct {
	Publisher Publisher
}

func (n PubSubNotifier) Notify(ctx context.Context, channel string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", channel, err)
	}
	if _, err := n.Publisher.Publish(ctx, data, map[string]string{"channel": channel}); err != nil {
		return fmt.Errorf("publish %s notification: %w", channel, err)
	}
	return nil
}

type Message struct {
	Channel string
	Payload map[string]any
}

// Recorder keeps every notification in memory; used by tests and dry runs.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(_ context.Context, channel string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Channel: channel, Payload: payload})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
