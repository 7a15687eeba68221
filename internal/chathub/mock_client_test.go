package chathub_test

import (
	"context"
	"sync"

	"topicchat/backend/internal/models"
)

type MockClient struct {
	userID      string
	RecvChannel chan models.Event

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID string, buffer int) *MockClient {
	return &MockClient{
		userID:      userID,
		RecvChannel: make(chan models.Event, buffer),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) GetSendChannel() chan<- models.Event {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeBroker loops published events straight back to the subscriber.
type fakeBroker struct {
	mu        sync.Mutex
	published []models.Event
	out       chan models.Event
	fail      error
	subErr    error
	closed    bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{out: make(chan models.Event, 16)}
}

func (b *fakeBroker) Publish(_ context.Context, evt models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.published = append(b.published, evt)
	if !b.closed {
		b.out <- evt
	}
	return nil
}

func (b *fakeBroker) Subscribe(context.Context) (<-chan models.Event, error) {
	if b.subErr != nil {
		return nil, b.subErr
	}
	return b.out, nil
}

// closeSubscription ends the stream the hub reads from. Later publishes are
// accepted and go nowhere, like a Redis channel with no subscribers.
func (b *fakeBroker) closeSubscription() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	close(b.out)
}

func (b *fakeBroker) Published() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Event(nil), b.published...)
}
