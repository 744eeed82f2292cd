package page

import (
	"sync"

	"github.com/cfilipov/blogd/internal/theme"
)

// MediaQuery is the live "prefers-color-scheme: dark" query of one context.
// The browser reports changes; the server only mirrors them.
type MediaQuery struct {
	mu        sync.Mutex
	signal    theme.Signal
	nextID    int
	listeners map[int]func(theme.Signal)
}

func NewMediaQuery(initial theme.Signal) *MediaQuery {
	return &MediaQuery{
		signal:    initial,
		listeners: make(map[int]func(theme.Signal)),
	}
}

func (m *MediaQuery) Signal() theme.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal
}

// Set updates the signal and, if it changed, calls every listener.
func (m *MediaQuery) Set(s theme.Signal) bool {
	m.mu.Lock()
	if s == m.signal {
		m.mu.Unlock()
		return false
	}
	m.signal = s
	fns := make([]func(theme.Signal), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
	return true
}

// OnChange registers fn for signal changes.
func (m *MediaQuery) OnChange(fn func(theme.Signal)) (cancel func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// ListenerCount is the number of registered change listeners.
func (m *MediaQuery) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
