package notify

import (
	"github.com/NeoChow/tindroid/internal/dispatch"
	"github.com/NeoChow/tindroid/internal/roster"
)

// Handler is the push ingress pipeline: validate, triage, post. It runs in
// the push-handling context, concurrent with the dispatch engine, and only
// touches the engine through the visible-topic marker.
type Handler struct {
	contacts roster.Roster
	notifier Notifier
	visible  func() string
	logger   Logger
}

func NewHandler(contacts roster.Roster, notifier Notifier, logger Logger) (*Handler, error) {
	if notifier == nil {
		return nil, ErrInvalidInput
	}
	return &Handler{
		contacts: contacts,
		notifier: notifier,
		visible:  dispatch.VisibleTopic,
		logger:   logger,
	}, nil
}

// Handle triages one raw push payload. A suppressed event is not an error;
// only malformed payloads and notifier failures are reported.
func (h *Handler) Handle(raw []byte) error {
	if h == nil {
		return ErrInvalidInput
	}
	evt, err := ParsePush(raw)
	if err != nil {
		logf(h.logger, "notify: rejected payload: %v", err)
		return err
	}
	decision := Decide(evt, h.visible(), h.contacts, h.logger)
	if !decision.Show {
		return nil
	}
	return h.notifier.Notify(Notification{
		Topic:  decision.Topic,
		Title:  decision.Title,
		Body:   decision.Body,
		Avatar: decision.Avatar,
	})
}
