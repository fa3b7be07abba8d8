package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
)

// MemoryStore is a process-local ContextStore for development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	messages      map[string][]model.Message
	prescriptions map[string][]model.Prescription
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:      map[string][]model.Message{},
		prescriptions: map[string][]model.Prescription{},
		now:           time.Now,
	}
}

// WithClock replaces the clock used for window bounds and new records.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) LoadHistory(_ context.Context, scope model.Scope, window model.Window) ([]model.Message, error) {
	if scope.Validate() != nil {
		return []model.Message{}, nil
	}
	since := window.Since(s.now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Message{}
	for _, m := range s.messages[scope.Key()] {
		if !since.IsZero() && m.Timestamp.Before(since) {
			continue
		}
		out = append(out, m)
	}
	if window.MaxMessages > 0 && len(out) > window.MaxMessages {
		out = out[len(out)-window.MaxMessages:]
	}
	return out, nil
}

func (s *MemoryStore) LoadLatestPrescription(_ context.Context, scope model.Scope) (*model.Prescription, error) {
	if scope.Validate() != nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rxs := s.prescriptions[scope.Key()]
	if len(rxs) == 0 {
		return nil, nil
	}
	p := rxs[len(rxs)-1]
	return &p, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, scope model.Scope, sender model.Sender, text string) (*model.Message, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errx.ErrEmptyMessage
	}
	m := model.Message{ID: uuid.NewString(), Sender: sender, Text: text, Timestamp: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[scope.Key()] = append(s.messages[scope.Key()], m)
	return &m, nil
}

// Seed inserts a message with an explicit timestamp, keeping per-scope order.
func (s *MemoryStore) Seed(scope model.Scope, m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scope.Key()
	msgs := s.messages[key]
	i := len(msgs)
	for i > 0 && msgs[i-1].Timestamp.After(m.Timestamp) {
		i--
	}
	s.messages[key] = append(msgs[:i], append([]model.Message{m}, msgs[i:]...)...)
}

func (s *MemoryStore) SavePrescription(_ context.Context, scope model.Scope, content string) (*model.Prescription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errx.ErrEmptyPrescription
	}
	p := model.Prescription{ID: uuid.NewString(), Content: content, Timestamp: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prescriptions[scope.Key()] = append(s.prescriptions[scope.Key()], p)
	return &p, nil
}

var _ model.ContextStore = (*MemoryStore)(nil)
