package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Data does not survive a restart.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Set(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	m.data[key] = buf
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *Memory) AppendRecord(ctx context.Context, key string, version int, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated, err := AppendToEnvelope(m.data[key], version, record)
	if err != nil {
		return err
	}
	m.data[key] = updated
	return nil
}

func (m *Memory) Close() error { return nil }
