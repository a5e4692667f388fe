package journal

import (
	"context"
	"sync"
)

// DefaultCapacity is the number of envelopes a Memory sink retains.
const DefaultCapacity = 1024

// Memory keeps the most recent envelopes in a bounded buffer.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	envs     []Envelope
}

// NewMemory returns a sink retaining up to capacity envelopes.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

// Write implements Sink.
func (m *Memory) Write(_ context.Context, envs []Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envs = append(m.envs, envs...)
	if over := len(m.envs) - m.capacity; over > 0 {
		m.envs = append([]Envelope(nil), m.envs[over:]...)
	}
	return nil
}

// Since returns up to limit envelopes with Seq > after, oldest first. A
// non-positive limit returns all of them.
func (m *Memory) Since(after uint64, limit int) []Envelope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Envelope
	for _, env := range m.envs {
		if env.Seq <= after {
			continue
		}
		out = append(out, env)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Named returns the retained envelopes called name, oldest first.
func (m *Memory) Named(name string) []Envelope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Envelope
	for _, env := range m.envs {
		if env.Name == name {
			out = append(out, env)
		}
	}
	return out
}
