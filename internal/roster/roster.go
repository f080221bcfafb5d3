// Package roster is the local cache of public profiles: the peers the
// account knows about and the group topics it is a member of. The dispatch
// engine reads it to decorate the toolbar; push triage reads it to assemble
// notification titles and avatars. Three backends exist — in-memory, JSON
// file and Postgres — selected by DSN.
package roster

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Card is the public profile of a user or a group topic.
type Card struct {
	Fn     string `json:"fn"`
	Avatar string `json:"avatar,omitempty"`
}

// Roster is a read-only profile lookup. Implementations must be safe for
// concurrent readers; the push-handling context reads without coordination
// with the dispatch engine.
type Roster interface {
	UserGet(id string) (*Card, bool)
	TopicGet(name string) (*Card, bool)
	Close() error
}

type Memory struct {
	mu     sync.RWMutex
	users  map[string]Card
	topics map[string]Card
}

func NewMemory() *Memory {
	return &Memory{
		users:  map[string]Card{},
		topics: map[string]Card{},
	}
}

func (m *Memory) PutUser(id string, card Card) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	m.mu.Lock()
	m.users[id] = card
	m.mu.Unlock()
}

func (m *Memory) PutTopic(name string, card Card) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	m.mu.Lock()
	m.topics[name] = card
	m.mu.Unlock()
}

func (m *Memory) UserGet(id string) (*Card, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	card, ok := m.users[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	clone := card
	return &clone, true
}

func (m *Memory) TopicGet(name string) (*Card, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	card, ok := m.topics[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	clone := card
	return &clone, true
}

func (m *Memory) Close() error {
	return nil
}
