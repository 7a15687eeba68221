package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"topicchat/backend/internal/models"

	"go.uber.org/zap"
)

// deliverBuffer bounds the queue of events waiting for the run loop.
const deliverBuffer = 1024

// Broker fans events out to every hub instance, this one included.
type Broker interface {
	Publish(ctx context.Context, evt models.Event) error
	Subscribe(ctx context.Context) (<-chan models.Event, error)
}

// ManagerService is the hub: it owns the registry of live connections and
// pushes events to them. All registry writes happen on the Run goroutine.
type ManagerService struct {
	RegisterCh   chan Client
	UnregisterCh chan Client

	deliverCh chan models.Event
	done      chan struct{}

	mu      sync.RWMutex
	clients map[string]map[Client]struct{}

	broker Broker
	// subscribed is true while Run holds a live broker subscription.
	subscribed atomic.Bool
	log        *zap.Logger
}

// NewManagerService creates a hub. broker may be nil for a single instance.
func NewManagerService(broker Broker, logger *zap.Logger) *ManagerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManagerService{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		deliverCh:    make(chan models.Event, deliverBuffer),
		done:         make(chan struct{}),
		clients:      make(map[string]map[Client]struct{}),
		broker:       broker,
		log:          logger.Named("hub"),
	}
}

// Emit implements randomchat.Notifier. It never blocks: when the queue is
// full the event is dropped and the client catches up by reading the session.
func (m *ManagerService) Emit(ctx context.Context, userID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	evt := models.Event{UserID: userID, Name: event, Payload: data}

	// Без підписки опубліковане ніхто на цьому інстансі не прочитає.
	if m.broker != nil && m.subscribed.Load() {
		err := m.broker.Publish(ctx, evt)
		if err == nil {
			return
		}
		m.log.Warn("broker publish failed, delivering locally", zap.String("event", event), zap.Error(err))
	}
	m.enqueue(evt)
}

func (m *ManagerService) enqueue(evt models.Event) {
	select {
	case m.deliverCh <- evt:
	default:
		m.log.Warn("event queue full, dropping event",
			zap.String("user_id", evt.UserID),
			zap.String("event", evt.Name))
	}
}

// Register adds c to the hub. It returns false once the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister removes c from the hub and closes it.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Online reports how many connections userID currently has.
func (m *ManagerService) Online(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[userID])
}

// Run processes registrations and deliveries until ctx is cancelled.
func (m *ManagerService) Run(ctx context.Context) {
	var remote <-chan models.Event
	if m.broker != nil {
		ch, err := m.broker.Subscribe(ctx)
		if err != nil {
			m.log.Error("broker subscribe failed, running without fan-out", zap.Error(err))
		} else {
			remote = ch
			m.subscribed.Store(true)
		}
	}
	defer m.subscribed.Store(false)
	m.log.Info("Hub started")

	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.closeAll()
			m.log.Info("Hub stopped")
			return

		case c := <-m.RegisterCh:
			m.register(c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case evt := <-m.deliverCh:
			m.deliver(evt)

		case evt, ok := <-remote:
			if !ok {
				m.log.Warn("broker subscription closed, delivering locally")
				m.subscribed.Store(false)
				remote = nil
				continue
			}
			m.deliver(evt)
		}
	}
}

func (m *ManagerService) register(c Client) {
	m.mu.Lock()
	set, ok := m.clients[c.GetUserID()]
	if !ok {
		set = make(map[Client]struct{})
		m.clients[c.GetUserID()] = set
	}
	set[c] = struct{}{}
	n := len(set)
	m.mu.Unlock()

	m.log.Debug("client registered", zap.String("user_id", c.GetUserID()), zap.Int("connections", n))
}

func (m *ManagerService) unregister(c Client) {
	m.mu.Lock()
	set, ok := m.clients[c.GetUserID()]
	if ok {
		if _, present := set[c]; !present {
			ok = false
		}
		delete(set, c)
		if len(set) == 0 {
			delete(m.clients, c.GetUserID())
		}
	}
	m.mu.Unlock()

	if ok {
		c.Close()
		m.log.Debug("client unregistered", zap.String("user_id", c.GetUserID()))
	}
}

// deliver hands evt to every connection of its user. A connection whose
// buffer is full is dropped rather than allowed to stall the loop.
func (m *ManagerService) deliver(evt models.Event) {
	m.mu.RLock()
	targets := make([]Client, 0, len(m.clients[evt.UserID]))
	for c := range m.clients[evt.UserID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.GetSendChannel() <- evt:
		default:
			m.log.Warn("client too slow, dropping connection",
				zap.String("user_id", evt.UserID),
				zap.String("event", evt.Name))
			m.unregister(c)
		}
	}
}

func (m *ManagerService) closeAll() {
	m.mu.Lock()
	all := m.clients
	m.clients = make(map[string]map[Client]struct{})
	m.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.Close()
		}
	}
}
