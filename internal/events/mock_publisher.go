package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// GoChannelEventPublisher publishes events over an in-process watermill
// pub/sub. Used when no Kafka brokers are configured (local development).
type GoChannelEventPublisher struct {
	pubsub *gochannel.GoChannel
	inner  *watermillPublisher
}

func NewGoChannelEventPublisher(logger *slog.Logger) *GoChannelEventPublisher {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	return &GoChannelEventPublisher{
		pubsub: pubsub,
		inner:  &watermillPublisher{publisher: pubsub, logger: logger},
	}
}

func (p *GoChannelEventPublisher) Publish(ctx context.Context, event *Event) error {
	return p.inner.Publish(ctx, event)
}

// Subscribe exposes the underlying topic stream, mainly for tests and
// local debugging.
func (p *GoChannelEventPublisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return p.pubsub.Subscribe(ctx, TopicAttempts)
}

func (p *GoChannelEventPublisher) Close() error {
	return p.pubsub.Close()
}

// MockEventPublisher records events in memory for assertions in tests.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*Event
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (p *MockEventPublisher) Publish(ctx context.Context, event *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.logger.DebugContext(ctx, "Mock event published", "event_type", event.Type)
	return nil
}

func (p *MockEventPublisher) GetPublishedEvents() []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MockEventPublisher) ClearEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func (p *MockEventPublisher) Close() error { return nil }
