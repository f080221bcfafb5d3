package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/NeoChow/tindroid/internal/roster"
)

type EventKind int

const (
	EventData EventKind = iota
	EventPresence
	EventInfo
	EventSubsUpdated
	EventMetaDesc
	EventOnline
	EventLogin
	EventDisconnect

	// eventTypingExpired is synthesized by the typing timer so the clear
	// runs on the router goroutine like every other effect.
	eventTypingExpired
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventPresence:
		return "pres"
	case EventInfo:
		return "info"
	case EventSubsUpdated:
		return "subs"
	case EventMetaDesc:
		return "desc"
	case EventOnline:
		return "online"
	case EventLogin:
		return "login"
	case EventDisconnect:
		return "disconnect"
	case eventTypingExpired:
		return "typing-expired"
	default:
		return "unknown"
	}
}

// Event is one inbound session or topic signal, a tagged variant routed by
// kind. Topic is empty for session-level signals such as login.
type Event struct {
	Kind   EventKind
	Topic  string
	From   string
	What   string
	Seq    int
	Online bool
	Card   *roster.Card
}

const (
	typingIndicatorTTL  = 4000 * time.Millisecond
	routerEventCapacity = 64
)

// Router consumes inbound events on a single goroutine and maps each onto a
// state transition or a display update. Serializing here is what keeps UI
// effects from racing: transports deliver from their read loops, the typing
// timer from its own goroutine, and both funnel through the same channel.
type Router struct {
	session *Session
	topic   *Topic
	ui      UI
	logger  Logger

	events    chan Event
	typingTTL time.Duration

	mu          sync.Mutex
	typingTimer *time.Timer
}

func NewRouter(session *Session, ui UI, logger Logger) (*Router, error) {
	if session == nil {
		return nil, ErrInvalidInput
	}
	if ui == nil {
		ui = NoopUI{}
	}
	return &Router{
		session:   session,
		topic:     session.topic,
		ui:        ui,
		logger:    logger,
		events:    make(chan Event, routerEventCapacity),
		typingTTL: typingIndicatorTTL,
	}, nil
}

// Deliver hands an event to the router. Never blocks; when the buffer is
// full the event is dropped, since every effect is a refresh hint the next
// event will repeat.
func (r *Router) Deliver(evt Event) {
	if r == nil {
		return
	}
	select {
	case r.events <- evt:
	default:
		logf(r.logger, "router: dropped %s event for %q", evt.Kind, evt.Topic)
	}
}

// Run consumes events until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	if r == nil {
		return
	}
	defer r.stopTypingTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-r.events:
			r.route(evt)
		}
	}
}

func (r *Router) route(evt Event) {
	// Topic-scoped signals for someone else's topic are not ours to handle.
	if evt.Kind != EventLogin && evt.Topic != "" && evt.Topic != r.topic.Name() {
		return
	}
	switch evt.Kind {
	case EventData:
		r.ui.Refresh()
	case EventPresence:
		// Placeholder: presence changes beyond on/off carry no behavior
		// yet, they are only recorded.
		logf(r.logger, "router: pres %q what=%q", evt.Topic, evt.What)
	case EventInfo:
		r.routeInfo(evt)
	case EventSubsUpdated:
		r.ui.RefreshVisible()
	case EventMetaDesc:
		if evt.Card != nil {
			r.topic.SetCard(evt.Card)
		}
		r.ui.SetToolbar(r.topic.Name(), r.topic.Card(), r.topic.Online())
		r.ui.RefreshVisible()
	case EventOnline:
		r.topic.SetOnline(evt.Online)
		r.ui.SetOnline(evt.Online)
	case EventLogin:
		r.session.HandleLogin()
	case EventDisconnect:
		r.topic.SetOnline(false)
		r.ui.SetOnline(false)
	case eventTypingExpired:
		r.ui.SetTyping(false)
	default:
		logf(r.logger, "router: unhandled %s event for %q", evt.Kind, evt.Topic)
	}
}

func (r *Router) routeInfo(evt Event) {
	switch evt.What {
	case "read", "recv":
		r.ui.RefreshMarkers()
	case "kp":
		r.ui.SetTyping(true)
		r.restartTypingTimer()
	default:
		logf(r.logger, "router: info %q what=%q", evt.Topic, evt.What)
	}
}

// restartTypingTimer arms the auto-clear, cancelling any previous instance
// so the indicator stays lit while keystrokes keep arriving.
func (r *Router) restartTypingTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.typingTimer != nil {
		r.typingTimer.Stop()
	}
	r.typingTimer = time.AfterFunc(r.typingTTL, func() {
		r.Deliver(Event{Kind: eventTypingExpired, Topic: r.topic.Name()})
	})
}

func (r *Router) stopTypingTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
}
