package topicmgr

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Manager is a catalogue of validated topics, safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	topics map[string]Topic
}

// NewManager returns an empty catalogue.
func NewManager() *Manager {
	return &Manager{topics: make(map[string]Topic)}
}

// DefineWire creates a socket event topic. Wire topics are shared with the
// backend and belong to no component.
func DefineWire(cfg TopicConfig) Topic {
	cfg.Scope = ScopeWire
	cfg.Component = ""
	return topic{cfg: cfg}
}

// DefineBus creates an internal change-bus topic.
func DefineBus(cfg TopicConfig) Topic {
	cfg.Scope = ScopeBus
	cfg.Direction = DirectionNone
	return topic{cfg: cfg}
}

// Register validates t and adds it to the catalogue.
func (m *Manager) Register(t Topic) error {
	if err := validate(t); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[t.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, t.Name())
	}
	m.topics[t.Name()] = t
	return nil
}

// RegisterAll registers topics, skipping names already present, so package
// RegisterTopics helpers can run more than once.
func (m *Manager) RegisterAll(topics ...Topic) error {
	for _, t := range topics {
		if err := m.Register(t); err != nil && !IsDuplicate(err) {
			return err
		}
	}
	return nil
}

// Get returns the topic registered under name.
func (m *Manager) Get(name string) (Topic, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[name]
	return t, ok
}

// Lookup is Get with an ErrUnknownTopic error.
func (m *Manager) Lookup(name string) (Topic, error) {
	if t, ok := m.Get(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, name)
}

// List returns every topic sorted by name.
func (m *Manager) List() []Topic {
	return m.where(func(Topic) bool { return true })
}

// ListByScope returns the topics of one scope.
func (m *Manager) ListByScope(scope TopicScope) []Topic {
	return m.where(func(t Topic) bool { return t.Scope() == scope })
}

// ListByComponent returns the bus topics owned by component.
func (m *Manager) ListByComponent(component string) []Topic {
	return m.where(func(t Topic) bool { return t.Component() == component })
}

// ListByDirection returns wire topics the client receives (Inbound) or
// sends (Outbound). Both include Bidirectional topics.
func (m *Manager) ListByDirection(d Direction) []Topic {
	return m.where(func(t Topic) bool {
		if t.Scope() != ScopeWire {
			return false
		}
		switch d {
		case Inbound:
			return t.Direction().Receives()
		case Outbound:
			return t.Direction().Sends()
		}
		return t.Direction() == d
	})
}

func (m *Manager) where(keep func(Topic) bool) []Topic {
	m.mu.RLock()
	out := make([]Topic, 0, len(m.topics))
	for _, t := range m.topics {
		if keep(t) {
			out = append(out, t)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Topic) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// Count returns the number of registered topics.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics)
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the process-wide catalogue that typed bus events and the
// wire event list register into.
func Default() *Manager {
	defaultManagerOnce.Do(func() { defaultManager = NewManager() })
	return defaultManager
}
