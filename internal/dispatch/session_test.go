package dispatch

import (
	"testing"
	"time"
)

func TestAttachResumesQueueAndFlushesBacklog(t *testing.T) {
	eng := newTestEngine(t, "grp1")

	// Authored before the subscription exists; must survive until attach.
	if _, err := eng.coord.Send("offline draft"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !eng.queue.Paused() {
		t.Fatalf("queue must start paused")
	}

	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})
	waitUntil(t, time.Second, func() bool {
		return len(eng.transport.publishedCopy()) == 1
	})
	if eng.queue.Paused() {
		t.Fatalf("expected queue resumed after attach")
	}
	if got := eng.transport.publishedCopy()[0]; got != "grp1:offline draft" {
		t.Fatalf("unexpected delivery: %q", got)
	}
}

func TestAttachOnlyValidFromDetached(t *testing.T) {
	eng := newTestEngine(t, "grp1")
	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if err := eng.session.Attach(); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState for second attach, got %v", err)
	}
}

func TestAttachTransientFailureStaysAttaching(t *testing.T) {
	eng := newTestEngine(t, "grp1")
	eng.transport.setSubscribeErr(ErrNotConnected)

	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	// Progress toggles on and back off once the attempt gives up.
	waitUntil(t, time.Second, func() bool {
		return len(eng.ui.progressCopy()) == 2
	})
	if state := eng.session.State(); state != StateAttaching {
		t.Fatalf("expected Attaching after transient failure, got %v", state)
	}
	if !eng.queue.Paused() {
		t.Fatalf("queue must stay paused after transient failure")
	}
	if eng.ui.invalidCount() != 0 || len(eng.ui.toastsCopy()) != 0 {
		t.Fatalf("transient failure must not surface to the user")
	}

	// The next login event retries the handshake.
	eng.transport.setSubscribeErr(nil)
	eng.session.HandleLogin()
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})
	if eng.queue.Paused() {
		t.Fatalf("expected queue resumed after login retry")
	}
}

func TestAttachRejectionBecomesInvalid(t *testing.T) {
	eng := newTestEngine(t, "grp1")
	eng.transport.setSubscribeErr(&ServerError{Code: 404, Text: "topic not found"})

	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateInvalid
	})
	if eng.ui.invalidCount() != 1 {
		t.Fatalf("expected invalid-topic signal, got %d", eng.ui.invalidCount())
	}
	if !eng.queue.Paused() {
		t.Fatalf("rejected attach must never resume the queue")
	}
}

func TestLoginReentersInvalidTopic(t *testing.T) {
	eng := newTestEngine(t, "grp1")
	eng.transport.setSubscribeErr(&ServerError{Code: 404, Text: "topic not found"})
	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateInvalid
	})

	eng.transport.setSubscribeErr(nil)
	eng.session.HandleLogin()
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})
}

func TestLoginWhileAttachedResubscribes(t *testing.T) {
	eng := newTestEngine(t, "grp1")
	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})

	// A fresh login means a new server session; the old subscription is
	// gone even though the local state still says Attached.
	eng.session.HandleLogin()
	waitUntil(t, time.Second, func() bool {
		return len(eng.transport.subscribedCopy()) == 2
	})
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})
	if eng.queue.Paused() {
		t.Fatalf("expected queue resumed after resubscribe")
	}
}

func TestAttachRewritesEphemeralIdentity(t *testing.T) {
	eng := newTestEngine(t, "newAbc")
	eng.transport.subscribeCtrl = &Ctrl{Topic: "grpXyz", Code: 200, Text: "ok"}
	SetVisibleTopic("newAbc")
	t.Cleanup(func() { SetVisibleTopic("") })

	if _, err := eng.coord.Send("first"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})
	if got := eng.topic.Name(); got != "grpXyz" {
		t.Fatalf("expected permanent name grpXyz, got %q", got)
	}
	waitUntil(t, time.Second, func() bool {
		return len(eng.transport.publishedCopy()) == 1
	})
	if got := eng.transport.publishedCopy()[0]; got != "grpXyz:first" {
		t.Fatalf("expected delivery under permanent name, got %q", got)
	}
	if VisibleTopic() != "grpXyz" {
		t.Fatalf("expected visible-topic marker rewritten, got %q", VisibleTopic())
	}
}

func TestDetachPausesQueueAndLeaves(t *testing.T) {
	eng := newTestEngine(t, "grp1")
	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})

	if err := eng.session.Detach(); err != nil {
		t.Fatalf("detach failed: %v", err)
	}
	if state := eng.session.State(); state != StateDetached {
		t.Fatalf("expected Detached, got %v", state)
	}
	if !eng.queue.Paused() {
		t.Fatalf("expected queue paused after detach")
	}
	if left := eng.transport.leftCopy(); len(left) != 1 || left[0] != "grp1" {
		t.Fatalf("expected leave for grp1, got %v", left)
	}
	if err := eng.session.Detach(); err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState for second detach, got %v", err)
	}
}

func TestSetFocusedPublishesVisibleMarker(t *testing.T) {
	eng := newTestEngine(t, "grp1")
	t.Cleanup(func() { SetVisibleTopic("") })

	cancelled := make([]string, 0, 1)
	eng.session.cancelNotification = func(topic string) {
		cancelled = append(cancelled, topic)
	}

	eng.session.SetFocused(true)
	if VisibleTopic() != "grp1" {
		t.Fatalf("expected visible topic grp1, got %q", VisibleTopic())
	}
	if len(cancelled) != 1 || cancelled[0] != "grp1" {
		t.Fatalf("expected notification cancel on focus, got %v", cancelled)
	}
	eng.session.SetFocused(false)
	if VisibleTopic() != "" {
		t.Fatalf("expected cleared marker, got %q", VisibleTopic())
	}
}

func TestSendKeyPressThrottlesAndRequiresAttach(t *testing.T) {
	eng := newTestEngine(t, "grp1")

	eng.session.SendKeyPress()
	if notes := eng.transport.keyNotesCopy(); len(notes) != 0 {
		t.Fatalf("expected no typing note while detached, got %v", notes)
	}

	if err := eng.session.Attach(); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		return eng.session.State() == StateAttached
	})
	eng.session.SendKeyPress()
	eng.session.SendKeyPress()
	eng.session.SendKeyPress()
	if notes := eng.transport.keyNotesCopy(); len(notes) != 1 {
		t.Fatalf("expected throttled to one typing note, got %v", notes)
	}
}
