package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NeoChow/tindroid/internal/dispatch"
)

type consoleTransport struct {
	mu         sync.Mutex
	subscribed []string
}

func (c *consoleTransport) Subscribe(_ context.Context, topic string, _ dispatch.SubscribeOptions) (*dispatch.Ctrl, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &dispatch.Ctrl{Topic: topic, Code: 200, Text: "ok"}, nil
}

func (c *consoleTransport) Publish(_ context.Context, topic, _ string) (*dispatch.Ctrl, error) {
	return &dispatch.Ctrl{Topic: topic, Code: 202, Text: "accepted"}, nil
}

func (c *consoleTransport) DeleteMessages(_ context.Context, topic string, _ []int) (*dispatch.Ctrl, error) {
	return &dispatch.Ctrl{Topic: topic, Code: 200, Text: "ok"}, nil
}

func (c *consoleTransport) Leave(context.Context, string) error { return nil }
func (c *consoleTransport) NoteKeyPress(string)                 {}

func (c *consoleTransport) subscribeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribed)
}

func newConsoleEngine(t *testing.T) (*dispatch.Session, *dispatch.Coordinator, *dispatch.Topic, *consoleTransport) {
	t.Helper()
	topic, err := dispatch.NewTopic("grp1")
	if err != nil {
		t.Fatalf("new topic failed: %v", err)
	}
	tr := &consoleTransport{}
	queue := dispatch.NewWorkQueue()
	t.Cleanup(queue.Shutdown)
	coord, err := dispatch.NewCoordinator(topic, dispatch.NewMemoryOutbox(), tr, queue, nil, nil)
	if err != nil {
		t.Fatalf("new coordinator failed: %v", err)
	}
	session, err := dispatch.NewSession(dispatch.SessionConfig{
		Topic:       topic,
		Coordinator: coord,
		Transport:   tr,
		Queue:       queue,
	})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	return session, coord, topic, tr
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TINDROID_TEST_VALUE", "ws://example.test/v0")
	if got := envOrDefault("TINDROID_TEST_VALUE", "fallback"); got != "ws://example.test/v0" {
		t.Fatalf("expected env value, got %q", got)
	}
	t.Setenv("TINDROID_TEST_VALUE", "  ")
	if got := envOrDefault("TINDROID_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback for blank value, got %q", got)
	}
}

func TestDurationEnv(t *testing.T) {
	t.Setenv("TINDROID_TEST_DURATION", "250ms")
	if got := durationEnv("TINDROID_TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", got)
	}
	t.Setenv("TINDROID_TEST_DURATION", "oops")
	if got := durationEnv("TINDROID_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback 1s, got %s", got)
	}
}

func TestRouterSinkHandsOffAcrossGoroutines(t *testing.T) {
	sink, publish := routerSink()
	// An event arriving before the router exists is dropped, not a panic.
	sink(dispatch.Event{Kind: dispatch.EventData, Topic: "grp1"})

	session, _, _, tr := newConsoleEngine(t)
	router, err := dispatch.NewRouter(session, nil, nil)
	if err != nil {
		t.Fatalf("new router failed: %v", err)
	}
	publish(router)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go router.Run(ctx)

	sink(dispatch.Event{Kind: dispatch.EventLogin})
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if tr.subscribeCount() == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected the published router to receive the login event")
}

func TestHandleLineArchiveCommands(t *testing.T) {
	session, coord, topic, _ := newConsoleEngine(t)

	if handleLine("/archive", session, coord, topic) {
		t.Fatalf("archive must not exit the client")
	}
	if !topic.Archived() {
		t.Fatalf("expected topic archived")
	}
	if handleLine("/unarchive", session, coord, topic) {
		t.Fatalf("unarchive must not exit the client")
	}
	if topic.Archived() {
		t.Fatalf("expected topic unarchived")
	}
}

func TestParseSeqs(t *testing.T) {
	seqs := parseSeqs([]string{"3", "4", "5"})
	if len(seqs) != 3 || seqs[0] != 3 || seqs[2] != 5 {
		t.Fatalf("unexpected seqs: %v", seqs)
	}
	if got := parseSeqs([]string{"3", "x"}); got != nil {
		t.Fatalf("expected nil for invalid input, got %v", got)
	}
	if got := parseSeqs(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
