package dispatch

import (
	"strings"
	"sync"

	"github.com/NeoChow/tindroid/internal/roster"
)

type TopicKind int

const (
	KindUnknown TopicKind = iota
	KindMe
	KindFnd
	KindP2P
	KindGrp
)

func (k TopicKind) String() string {
	switch k {
	case KindMe:
		return "me"
	case KindFnd:
		return "fnd"
	case KindP2P:
		return "p2p"
	case KindGrp:
		return "grp"
	default:
		return "unknown"
	}
}

// KindOf classifies a topic by its name. A "usr" name addresses the peer
// directly, so it resolves to the same P2P conversation as a "p2p" name.
// "new" is a group topic that has not been assigned its permanent name yet.
func KindOf(name string) TopicKind {
	name = strings.TrimSpace(name)
	switch {
	case name == "me":
		return KindMe
	case name == "fnd":
		return KindFnd
	case strings.HasPrefix(name, "usr"), strings.HasPrefix(name, "p2p"):
		return KindP2P
	case strings.HasPrefix(name, "grp"), strings.HasPrefix(name, "new"):
		return KindGrp
	default:
		return KindUnknown
	}
}

// Topic is the engine's non-owning view of one conversation: its identity,
// online marker, archived flag and last-known public profile. The name may
// be rewritten once, when the server acknowledges a subscription to an
// ephemeral "new" topic with the permanent name.
type Topic struct {
	mu       sync.Mutex
	name     string
	online   bool
	archived bool
	card     *roster.Card
}

func NewTopic(name string) (*Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	return &Topic{name: name}, nil
}

func (t *Topic) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

func (t *Topic) Rename(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

func (t *Topic) Kind() TopicKind {
	return KindOf(t.Name())
}

func (t *Topic) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

func (t *Topic) SetOnline(online bool) {
	t.mu.Lock()
	t.online = online
	t.mu.Unlock()
}

func (t *Topic) Archived() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.archived
}

func (t *Topic) SetArchived(archived bool) {
	t.mu.Lock()
	t.archived = archived
	t.mu.Unlock()
}

func (t *Topic) Card() *roster.Card {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.card == nil {
		return nil
	}
	card := *t.card
	return &card
}

func (t *Topic) SetCard(card *roster.Card) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if card == nil {
		t.card = nil
		return
	}
	clone := *card
	t.card = &clone
}
