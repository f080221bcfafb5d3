package dispatch

import "context"

// Ctrl is the server acknowledgement for a client-initiated request. Code
// follows HTTP conventions; Params carries request-specific extras such as
// the permanent name assigned to an ephemeral topic.
type Ctrl struct {
	ID     string
	Topic  string
	Code   int
	Text   string
	Params map[string]any
}

// SubscribeOptions selects which server-side queries accompany an attach.
// A fresh subscription asks for all four; a re-attach after reconnect can
// skip what it already has.
type SubscribeOptions struct {
	Desc bool
	Sub  bool
	Data bool
	Del  bool
}

// Transport is the server connection. Implementations return ErrNotConnected
// (or wrap it) while the link is down so callers can tell a retryable outage
// from a definitive rejection, which arrives as *ServerError.
type Transport interface {
	Subscribe(ctx context.Context, topic string, opts SubscribeOptions) (*Ctrl, error)
	Publish(ctx context.Context, topic, content string) (*Ctrl, error)
	DeleteMessages(ctx context.Context, topic string, seqs []int) (*Ctrl, error)
	Leave(ctx context.Context, topic string) error

	// NoteKeyPress is fire-and-forget; senders drop it silently when the
	// link is down.
	NoteKeyPress(topic string)
}
