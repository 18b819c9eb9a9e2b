package history

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	messages []Message
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (s *memoryStore) Load(context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Message{}, s.messages...), nil
}

func (s *memoryStore) Save(_ context.Context, messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append([]Message{}, messages...)
	return nil
}

func (s *memoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
