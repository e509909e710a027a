package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and single-tab setups. It
// implements Atomic.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	subs   map[string][]*memorySub
}

type memorySub struct {
	handler func(string)
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
		subs:   make(map[string][]*memorySub),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	subs := append([]*memorySub(nil), m.subs[key]...)
	m.mu.Unlock()

	for _, s := range subs {
		s.handler(value)
	}
	return nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.values[key]
	delete(m.values, key)
	subs := append([]*memorySub(nil), m.subs[key]...)
	m.mu.Unlock()

	if existed {
		for _, s := range subs {
			s.handler("")
		}
	}
	return nil
}

func (m *Memory) Subscribe(key string, handler func(string)) (func(), error) {
	sub := &memorySub{handler: handler}

	m.mu.Lock()
	m.subs[key] = append(m.subs[key], sub)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[key]
		for i, s := range subs {
			if s == sub {
				m.subs[key] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	return cancel, nil
}

// CompareAndSwap sets key to new only if its current value equals old. An
// old of "" requires the key to be absent.
func (m *Memory) CompareAndSwap(_ context.Context, key, old, new string) (bool, error) {
	m.mu.Lock()
	current, ok := m.values[key]
	if (old == "" && ok) || (old != "" && current != old) {
		m.mu.Unlock()
		return false, nil
	}
	m.values[key] = new
	subs := append([]*memorySub(nil), m.subs[key]...)
	m.mu.Unlock()

	for _, s := range subs {
		s.handler(new)
	}
	return true, nil
}

func (m *Memory) Close() error { return nil }
