package notify

import (
	"sort"
	"strings"
	"sync"
)

// Notification is one posted alert. Topic doubles as the replace key: a
// newer notification for the same topic replaces the previous one instead of
// stacking. The empty topic is the generic slot routing into the
// conversation list.
type Notification struct {
	Topic  string
	Title  string
	Body   string
	Avatar string
}

type Notifier interface {
	Notify(n Notification) error
	// Cancel withdraws the notification posted for a topic, if any. Called
	// when the user opens the conversation.
	Cancel(topic string)
}

// MemoryNotifier keeps the currently posted notifications in memory, one
// slot per topic.
type MemoryNotifier struct {
	mu     sync.Mutex
	active map[string]Notification
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{active: map[string]Notification{}}
}

func (m *MemoryNotifier) Notify(n Notification) error {
	if m == nil {
		return ErrInvalidInput
	}
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Body) == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[n.Topic] = n
	return nil
}

func (m *MemoryNotifier) Cancel(topic string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, topic)
}

// Active returns the posted notifications ordered by topic.
func (m *MemoryNotifier) Active() []Notification {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]Notification, 0, len(m.active))
	for _, n := range m.active {
		items = append(items, n)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Topic < items[j].Topic })
	return items
}

// Get reports the notification currently posted for a topic.
func (m *MemoryNotifier) Get(topic string) (Notification, bool) {
	if m == nil {
		return Notification{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.active[topic]
	return n, ok
}
