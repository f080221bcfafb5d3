package notify

import (
	"testing"

	"github.com/NeoChow/tindroid/internal/dispatch"
)

func TestMemoryNotifierReplacesByTopic(t *testing.T) {
	notifier := NewMemoryNotifier()
	if err := notifier.Notify(Notification{Topic: "grpBook", Title: "Book Club", Body: "Alice: hi"}); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	if err := notifier.Notify(Notification{Topic: "grpBook", Title: "Book Club", Body: "Alice: bye"}); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
	active := notifier.Active()
	if len(active) != 1 || active[0].Body != "Alice: bye" {
		t.Fatalf("expected newer notification to replace, got %+v", active)
	}

	notifier.Cancel("grpBook")
	if got := notifier.Active(); len(got) != 0 {
		t.Fatalf("expected empty after cancel, got %+v", got)
	}
}

func TestHandlerPostsTriagedNotification(t *testing.T) {
	dispatch.SetVisibleTopic("")
	t.Cleanup(func() { dispatch.SetVisibleTopic("") })

	notifier := NewMemoryNotifier()
	handler, err := NewHandler(testRoster(t), notifier, nil)
	if err != nil {
		t.Fatalf("new handler failed: %v", err)
	}
	if err := handler.Handle([]byte(`{"topic":"usr42","xfrom":"usr7","content":"hi"}`)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	posted, ok := notifier.Get("usr42")
	if !ok || posted.Title != "Alice" || posted.Body != "hi" {
		t.Fatalf("expected posted notification for usr42, got %+v ok=%v", posted, ok)
	}
}

func TestHandlerSuppressesVisibleTopic(t *testing.T) {
	dispatch.SetVisibleTopic("usr42")
	t.Cleanup(func() { dispatch.SetVisibleTopic("") })

	notifier := NewMemoryNotifier()
	handler, err := NewHandler(testRoster(t), notifier, nil)
	if err != nil {
		t.Fatalf("new handler failed: %v", err)
	}
	if err := handler.Handle([]byte(`{"topic":"usr42","xfrom":"usr7","content":"hi"}`)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if got := notifier.Active(); len(got) != 0 {
		t.Fatalf("expected suppression for visible topic, got %+v", got)
	}
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	notifier := NewMemoryNotifier()
	handler, err := NewHandler(testRoster(t), notifier, nil)
	if err != nil {
		t.Fatalf("new handler failed: %v", err)
	}
	if err := handler.Handle([]byte(`{"what":"seen"}`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
	if got := notifier.Active(); len(got) != 0 {
		t.Fatalf("expected nothing posted, got %+v", got)
	}
}
