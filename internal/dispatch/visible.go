package dispatch

import (
	"strings"
	"sync"
)

// The visible-topic marker names the conversation currently rendered
// full-screen, or "" when none is. It is written from the session's focus
// handler and read from the push-handling context, which may be a different
// goroutine entirely, so it gets its own lock rather than piggybacking on
// any session state.
var visibleTopicMarker = struct {
	mu   sync.RWMutex
	name string
}{}

// SetVisibleTopic records the topic in the foreground. Pass "" on focus loss.
func SetVisibleTopic(name string) {
	name = strings.TrimSpace(name)
	visibleTopicMarker.mu.Lock()
	visibleTopicMarker.name = name
	visibleTopicMarker.mu.Unlock()
}

func VisibleTopic() string {
	visibleTopicMarker.mu.RLock()
	defer visibleTopicMarker.mu.RUnlock()
	return visibleTopicMarker.name
}
