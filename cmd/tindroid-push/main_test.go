package main

import (
	"testing"

	"github.com/NeoChow/tindroid/internal/dispatch"
	"github.com/NeoChow/tindroid/internal/roster"
)

func TestRunTriageShowsP2PMessage(t *testing.T) {
	t.Cleanup(func() { dispatch.SetVisibleTopic("") })
	contacts := roster.NewMemory()
	contacts.PutUser("usr7", roster.Card{Fn: "Alice"})

	posted, shown, err := runTriage([]byte(`{"topic":"usr42","xfrom":"usr7","content":"hi"}`), "", contacts, nil)
	if err != nil {
		t.Fatalf("triage failed: %v", err)
	}
	if !shown || posted.Title != "Alice" || posted.Body != "hi" {
		t.Fatalf("expected show{Alice, hi}, got %+v shown=%v", posted, shown)
	}
}

func TestRunTriageSuppressesVisibleTopic(t *testing.T) {
	t.Cleanup(func() { dispatch.SetVisibleTopic("") })
	_, shown, err := runTriage([]byte(`{"topic":"grp123","xfrom":"usr7","content":"hi"}`), "grp123", roster.NewMemory(), nil)
	if err != nil {
		t.Fatalf("triage failed: %v", err)
	}
	if shown {
		t.Fatalf("expected suppression for visible topic")
	}
}

func TestRunTriageRejectsMalformedPayload(t *testing.T) {
	t.Cleanup(func() { dispatch.SetVisibleTopic("") })
	if _, _, err := runTriage([]byte(`{"what":"seen"}`), "", roster.NewMemory(), nil); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
