package session

import (
	"context"
	"sync"

	"github.com/saiset-co/sai-food-admin/types"
)

// MemoryBackend keeps sessions in process memory. Records are lost on restart.
type MemoryBackend struct {
	lifecycle
	mu       sync.RWMutex
	sessions map[string]Record
}

func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{
		sessions: make(map[string]Record),
	}
	b.init()
	return b
}

func (m *MemoryBackend) Start() error {
	return m.start(nil)
}

func (m *MemoryBackend) Stop() error {
	return m.stop(nil)
}

func (m *MemoryBackend) Load(_ context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	record, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, types.ErrSessionNotFound
	}

	return record.Session(), nil
}

func (m *MemoryBackend) Save(_ context.Context, id string, session *types.Session) error {
	m.mu.Lock()
	m.sessions[id] = NewRecord(id, session)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Ping(_ context.Context) error {
	return nil
}
