package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

type SubState int

const (
	StateDetached SubState = iota
	StateAttaching
	StateAttached
	StateInvalid
)

func (s SubState) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

const (
	defaultAttachTimeout = 10 * time.Second
	keyPressInterval     = 3 * time.Second
)

// Session is the attach/detach lifecycle of one open topic. The queue stays
// paused whenever the state is not Attached and is resumed in the same
// transition that enters Attached, before any pending operation is
// redelivered.
type Session struct {
	topic     *Topic
	coord     *Coordinator
	transport Transport
	queue     *WorkQueue
	ui        UI
	logger    Logger

	// cancelNotification clears any posted notification for the topic once
	// the user opens it. Optional.
	cancelNotification func(topic string)

	mu           sync.Mutex
	state        SubState
	lastKeyPress time.Time

	attachTimeout time.Duration
}

type SessionConfig struct {
	Topic              *Topic
	Coordinator        *Coordinator
	Transport          Transport
	Queue              *WorkQueue
	UI                 UI
	Logger             Logger
	CancelNotification func(topic string)
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Topic == nil || cfg.Coordinator == nil || cfg.Transport == nil || cfg.Queue == nil {
		return nil, ErrInvalidInput
	}
	ui := cfg.UI
	if ui == nil {
		ui = NoopUI{}
	}
	return &Session{
		topic:              cfg.Topic,
		coord:              cfg.Coordinator,
		transport:          cfg.Transport,
		queue:              cfg.Queue,
		ui:                 ui,
		logger:             cfg.Logger,
		cancelNotification: cfg.CancelNotification,
		state:              StateDetached,
		attachTimeout:      defaultAttachTimeout,
	}, nil
}

func (s *Session) State() SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attach starts the subscribe handshake. Valid only from Detached; a failed
// attempt is retried by the next login event, not by calling Attach again.
func (s *Session) Attach() error {
	if s == nil {
		return ErrInvalidState
	}
	s.mu.Lock()
	if s.state != StateDetached {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = StateAttaching
	s.mu.Unlock()

	s.ui.SetProgress(true)
	go s.subscribe()
	return nil
}

// Detach leaves the topic. Valid only from Attached.
func (s *Session) Detach() error {
	if s == nil {
		return ErrInvalidState
	}
	s.mu.Lock()
	if s.state != StateAttached {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.queue.Pause()
	s.state = StateDetached
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.attachTimeout)
	defer cancel()
	if err := s.transport.Leave(ctx, s.topic.Name()); err != nil {
		logf(s.logger, "session: leave %q: %v", s.topic.Name(), err)
	}
	return nil
}

// HandleLogin re-runs the subscribe handshake after the connection comes
// back. Unconditional: a fresh login means the server built a new session,
// so even a topic that believes it is Attached no longer holds a server-side
// subscription and must resubscribe.
func (s *Session) HandleLogin() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.state == StateAttached {
		s.queue.Pause()
	}
	s.state = StateAttaching
	s.mu.Unlock()

	s.ui.SetProgress(true)
	go s.subscribe()
}

// SetFocused publishes or clears the process-wide visible-topic marker as
// the conversation view gains and loses window focus.
func (s *Session) SetFocused(focused bool) {
	if s == nil {
		return
	}
	if focused {
		SetVisibleTopic(s.topic.Name())
		if s.cancelNotification != nil {
			s.cancelNotification(s.topic.Name())
		}
		return
	}
	SetVisibleTopic("")
}

// SendKeyPress forwards a typing notification, throttled so a burst of
// keystrokes produces at most one note per interval. Dropped silently when
// not attached.
func (s *Session) SendKeyPress() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.state != StateAttached {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Sub(s.lastKeyPress) < keyPressInterval {
		s.mu.Unlock()
		return
	}
	s.lastKeyPress = now
	s.mu.Unlock()

	s.transport.NoteKeyPress(s.topic.Name())
}

// Shutdown releases the queue worker. In-flight work finishes; nothing else
// runs.
func (s *Session) Shutdown() {
	if s == nil {
		return
	}
	s.queue.Shutdown()
}

func (s *Session) subscribe() {
	name := s.topic.Name()
	ctx, cancel := context.WithTimeout(context.Background(), s.attachTimeout)
	defer cancel()

	ctrl, err := s.transport.Subscribe(ctx, name, SubscribeOptions{
		Desc: true,
		Sub:  true,
		Data: true,
		Del:  true,
	})
	s.ui.SetProgress(false)
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			s.mu.Lock()
			s.state = StateInvalid
			s.mu.Unlock()
			logf(s.logger, "session: subscribe %q rejected: %v", name, err)
			s.ui.ShowInvalidTopic()
			return
		}
		// Transient outage: stay in Attaching and wait for the next login
		// event to retry. Not a user-visible error.
		logf(s.logger, "session: subscribe %q: %v", name, err)
		return
	}

	// The server may assign a permanent name to an ephemeral topic. Rewrite
	// the identity before anything is delivered under the old one.
	if ctrl != nil && ctrl.Topic != "" && ctrl.Topic != name {
		s.rewriteIdentity(name, ctrl.Topic)
		name = ctrl.Topic
	}

	s.mu.Lock()
	s.state = StateAttached
	s.mu.Unlock()

	if s.cancelNotification != nil {
		s.cancelNotification(name)
	}
	s.ui.SetToolbar(name, s.topic.Card(), s.topic.Online())

	// Resume before SyncAll so the flush task is runnable the moment it is
	// queued.
	s.queue.Resume()
	if err := s.coord.SyncAll(); err != nil {
		logf(s.logger, "session: sync %q: %v", name, err)
	}
}

func (s *Session) rewriteIdentity(oldName, newName string) {
	s.topic.Rename(newName)
	if err := s.coord.outbox.Rename(oldName, newName); err != nil {
		logf(s.logger, "session: rename outbox %q -> %q: %v", oldName, newName, err)
	}
	if VisibleTopic() == oldName {
		SetVisibleTopic(newName)
	}
}
