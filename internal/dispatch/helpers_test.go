package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NeoChow/tindroid/internal/roster"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

type fakeTransport struct {
	mu sync.Mutex

	subscribeCtrl *Ctrl
	subscribeErr  error
	publishErr    error
	deleteErr     error

	subscribed []string
	published  []string
	deleted    [][]int
	left       []string
	keyNotes   []string
}

func (f *fakeTransport) Subscribe(_ context.Context, topic string, _ SubscribeOptions) (*Ctrl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	if f.subscribeCtrl != nil {
		return f.subscribeCtrl, nil
	}
	return &Ctrl{Topic: topic, Code: 200, Text: "ok"}, nil
}

func (f *fakeTransport) Publish(_ context.Context, topic, content string) (*Ctrl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, topic+":"+content)
	return &Ctrl{Topic: topic, Code: 202, Text: "accepted"}, nil
}

func (f *fakeTransport) DeleteMessages(_ context.Context, topic string, seqs []int) (*Ctrl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, append([]int(nil), seqs...))
	return &Ctrl{Topic: topic, Code: 200, Text: "ok"}, nil
}

func (f *fakeTransport) Leave(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, topic)
	return nil
}

func (f *fakeTransport) NoteKeyPress(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyNotes = append(f.keyNotes, topic)
}

func (f *fakeTransport) setSubscribeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErr = err
}

func (f *fakeTransport) setPublishErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErr = err
}

func (f *fakeTransport) subscribedCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

func (f *fakeTransport) publishedCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func (f *fakeTransport) leftCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.left...)
}

func (f *fakeTransport) keyNotesCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keyNotes...)
}

type recordingUI struct {
	mu sync.Mutex

	refreshes        int
	markerRefreshes  int
	visibleRefreshes int
	progress         []bool
	toolbars         []string
	online           []bool
	typing           []bool
	invalidShown     int
	toasts           []string
}

func (u *recordingUI) Refresh() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.refreshes++
}

func (u *recordingUI) RefreshMarkers() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.markerRefreshes++
}

func (u *recordingUI) RefreshVisible() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.visibleRefreshes++
}

func (u *recordingUI) SetProgress(active bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.progress = append(u.progress, active)
}

func (u *recordingUI) SetToolbar(topic string, card *roster.Card, online bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	title := topic
	if card != nil && card.Fn != "" {
		title = card.Fn
	}
	u.toolbars = append(u.toolbars, title)
}

func (u *recordingUI) SetOnline(online bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.online = append(u.online, online)
}

func (u *recordingUI) SetTyping(active bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.typing = append(u.typing, active)
}

func (u *recordingUI) ShowInvalidTopic() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.invalidShown++
}

func (u *recordingUI) Toast(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.toasts = append(u.toasts, text)
}

func (u *recordingUI) refreshCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.refreshes
}

func (u *recordingUI) markerRefreshCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.markerRefreshes
}

func (u *recordingUI) visibleRefreshCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.visibleRefreshes
}

func (u *recordingUI) progressCopy() []bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]bool(nil), u.progress...)
}

func (u *recordingUI) toastsCopy() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.toasts...)
}

func (u *recordingUI) typingCopy() []bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]bool(nil), u.typing...)
}

func (u *recordingUI) invalidCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.invalidShown
}

type testEngine struct {
	topic     *Topic
	outbox    Outbox
	transport *fakeTransport
	queue     *WorkQueue
	ui        *recordingUI
	coord     *Coordinator
	session   *Session
}

func newTestEngine(t *testing.T, topicName string) *testEngine {
	t.Helper()
	topic, err := NewTopic(topicName)
	if err != nil {
		t.Fatalf("new topic failed: %v", err)
	}
	transport := &fakeTransport{}
	queue := NewWorkQueue()
	t.Cleanup(queue.Shutdown)
	ui := &recordingUI{}
	outbox := NewMemoryOutbox()
	coord, err := NewCoordinator(topic, outbox, transport, queue, ui, nil)
	if err != nil {
		t.Fatalf("new coordinator failed: %v", err)
	}
	session, err := NewSession(SessionConfig{
		Topic:       topic,
		Coordinator: coord,
		Transport:   transport,
		Queue:       queue,
		UI:          ui,
	})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	return &testEngine{
		topic:     topic,
		outbox:    outbox,
		transport: transport,
		queue:     queue,
		ui:        ui,
		coord:     coord,
		session:   session,
	}
}
