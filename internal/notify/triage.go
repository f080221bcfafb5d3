package notify

import (
	"github.com/NeoChow/tindroid/internal/dispatch"
	"github.com/NeoChow/tindroid/internal/roster"
)

const unknownSenderLabel = "Unknown sender"

// Decision is the outcome of triaging one push event. When Show is false the
// event is dropped; otherwise Topic names the conversation the alert routes
// into, or is empty to route into the conversation list.
type Decision struct {
	Show   bool
	Title  string
	Body   string
	Avatar string
	Topic  string
}

// Decide maps a push event onto a show/suppress decision. It is a pure
// function of its arguments: identical event, visible topic and roster state
// always yield the identical decision. Rules in order:
//
//  1. an event with no topic identity is a generic alert, shown verbatim;
//  2. an event for the topic currently on screen is suppressed;
//  3. a p2p message is titled with the sender's display name;
//  4. a group message is titled with the group's name and needs a resolvable
//     group profile, otherwise it is suppressed;
//  5. anything else is unexpected and suppressed.
func Decide(evt *PushEvent, visibleTopic string, contacts roster.Roster, logger Logger) Decision {
	if evt == nil {
		return Decision{}
	}
	if evt.Note != nil {
		return Decision{Show: true, Title: evt.Note.Title, Body: evt.Note.Body}
	}
	if evt.Data == nil {
		return Decision{}
	}
	data := evt.Data
	if data.Topic == visibleTopic {
		return Decision{}
	}

	senderName := unknownSenderLabel
	senderAvatar := ""
	if contacts != nil {
		if card, ok := contacts.UserGet(data.XFrom); ok {
			if card.Fn != "" {
				senderName = card.Fn
			}
			senderAvatar = card.Avatar
		}
	}

	switch dispatch.KindOf(data.Topic) {
	case dispatch.KindP2P:
		return Decision{
			Show:   true,
			Title:  senderName,
			Body:   data.Content,
			Avatar: senderAvatar,
			Topic:  data.Topic,
		}
	case dispatch.KindGrp:
		if contacts == nil {
			logf(logger, "notify: no roster to resolve group %q, dropping", data.Topic)
			return Decision{}
		}
		group, ok := contacts.TopicGet(data.Topic)
		if !ok || group.Fn == "" {
			logf(logger, "notify: unresolvable group %q, dropping", data.Topic)
			return Decision{}
		}
		return Decision{
			Show:   true,
			Title:  group.Fn,
			Body:   senderName + ": " + data.Content,
			Avatar: senderAvatar,
			Topic:  data.Topic,
		}
	default:
		logf(logger, "notify: unexpected topic kind for %q, dropping", data.Topic)
		return Decision{}
	}
}
