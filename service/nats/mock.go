package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing. It also
// delivers published events to its subscribers, so it can stand in for a
// Subscriber too.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*SwapEvent
	subscribers     []mockSubscription
	publishError    error
	closed          bool
}

type mockSubscription struct {
	ctx    context.Context
	wallet string
	ch     chan *SwapEvent
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishSwap records the event and returns any configured error.
func (m *MockPublisher) PublishSwap(ctx context.Context, event *SwapEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	for _, sub := range m.subscribers {
		if sub.wallet != "" && sub.wallet != event.Wallet {
			continue
		}
		select {
		case sub.ch <- event:
		case <-sub.ctx.Done():
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives events published after the call.
func (m *MockPublisher) Subscribe(ctx context.Context, wallet string) (<-chan *SwapEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *SwapEvent, 10)
	m.subscribers = append(m.subscribers, mockSubscription{ctx: ctx, wallet: wallet, ch: ch})
	return ch, nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns a copy of all published events.
func (m *MockPublisher) GetPublishedEvents() []*SwapEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*SwapEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsForWallet returns events published for a specific wallet.
func (m *MockPublisher) GetPublishedEventsForWallet(wallet string) []*SwapEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*SwapEvent
	for _, event := range m.publishedEvents {
		if event.Wallet == wallet {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishSwap.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
