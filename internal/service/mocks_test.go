package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"pairchat/internal/models"
)

type sentEvent struct {
	Event models.EventKind
	Data  interface{}
}

// mockConn records everything sent through it.
type mockConn struct {
	mu      sync.Mutex
	sent    []sentEvent
	sendErr error
	closed  bool
}

func (c *mockConn) Send(event models.EventKind, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentEvent{Event: event, Data: data})
	return nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockConn) events() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentEvent, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *mockConn) eventsOfKind(kind models.EventKind) []sentEvent {
	var out []sentEvent
	for _, e := range c.events() {
		if e.Event == kind {
			out = append(out, e)
		}
	}
	return out
}

// memoryStore is an in-memory MessageStore with per-method error injection.
type memoryStore struct {
	mu      sync.Mutex
	history map[string][]models.Message
	pending map[string][]models.Message

	appendErr  error
	historyErr error
	enqueueErr error
	drainErr   error
	removeErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		history: make(map[string][]models.Message),
		pending: make(map[string][]models.Message),
	}
}

func (s *memoryStore) Append(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.history[msg.From] = append(s.history[msg.From], *msg)
	s.history[msg.To] = append(s.history[msg.To], *msg)
	return nil
}

func (s *memoryStore) History(ctx context.Context, owner string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	out := make([]models.Message, len(s.history[owner]))
	copy(out, s.history[owner])
	return out, nil
}

func (s *memoryStore) EnqueuePending(ctx context.Context, recipient string, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.pending[recipient] = append(s.pending[recipient], *msg)
	return nil
}

func (s *memoryStore) DrainPending(ctx context.Context, recipient string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drainErr != nil {
		return nil, s.drainErr
	}
	out := s.pending[recipient]
	delete(s.pending, recipient)
	return out, nil
}

func (s *memoryStore) Remove(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	for owner, msgs := range s.history {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.ID != messageID {
				kept = append(kept, m)
			}
		}
		s.history[owner] = kept
	}
	for recipient, msgs := range s.pending {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.ID != messageID {
				kept = append(kept, m)
			}
		}
		s.pending[recipient] = kept
	}
	return nil
}

func (s *memoryStore) pendingFor(recipient string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.pending[recipient]))
	copy(out, s.pending[recipient])
	return out
}

func (s *memoryStore) historyFor(owner string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.history[owner]))
	copy(out, s.history[owner])
	return out
}

func testRoster() []models.IdentityConfig {
	return []models.IdentityConfig{
		{Name: "alice", Credential: "alice-pass", Counterpart: "bob"},
		{Name: "bob", Credential: "bob-pass", Counterpart: "alice"},
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
