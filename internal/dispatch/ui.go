package dispatch

import "github.com/NeoChow/tindroid/internal/roster"

// UI receives display updates from the engine. Every call is
// fire-and-forget: implementations must not block and must tolerate calls
// from the queue worker and router goroutines.
type UI interface {
	// Refresh reloads the full message view.
	Refresh()
	// RefreshMarkers repaints read/received indicators without reloading
	// messages.
	RefreshMarkers()
	// RefreshVisible repaints only the rows currently on screen.
	RefreshVisible()

	SetProgress(active bool)
	SetToolbar(topic string, card *roster.Card, online bool)
	SetOnline(online bool)
	SetTyping(active bool)

	ShowInvalidTopic()
	Toast(text string)
}

// NoopUI discards every update. Embed it to implement only the callbacks a
// surface cares about.
type NoopUI struct{}

func (NoopUI) Refresh()                              {}
func (NoopUI) RefreshMarkers()                       {}
func (NoopUI) RefreshVisible()                       {}
func (NoopUI) SetProgress(bool)                      {}
func (NoopUI) SetToolbar(string, *roster.Card, bool) {}
func (NoopUI) SetOnline(bool)                        {}
func (NoopUI) SetTyping(bool)                        {}
func (NoopUI) ShowInvalidTopic()                     {}
func (NoopUI) Toast(string)                          {}

// LoggingUI writes every update to a logger. The terminal client uses it as
// its display surface.
type LoggingUI struct {
	Logger Logger
}

func (u *LoggingUI) Refresh()        { logf(u.logger(), "ui: refresh") }
func (u *LoggingUI) RefreshMarkers() { logf(u.logger(), "ui: refresh markers") }
func (u *LoggingUI) RefreshVisible() { logf(u.logger(), "ui: refresh visible") }

func (u *LoggingUI) SetProgress(active bool) {
	logf(u.logger(), "ui: progress=%v", active)
}

func (u *LoggingUI) SetToolbar(topic string, card *roster.Card, online bool) {
	title := topic
	if card != nil && card.Fn != "" {
		title = card.Fn
	}
	logf(u.logger(), "ui: toolbar %q online=%v", title, online)
}

func (u *LoggingUI) SetOnline(online bool) {
	logf(u.logger(), "ui: peer online=%v", online)
}

func (u *LoggingUI) SetTyping(active bool) {
	logf(u.logger(), "ui: typing=%v", active)
}

func (u *LoggingUI) ShowInvalidTopic() {
	logf(u.logger(), "ui: invalid topic")
}

func (u *LoggingUI) Toast(text string) {
	logf(u.logger(), "ui: toast %q", text)
}

func (u *LoggingUI) logger() Logger {
	if u == nil {
		return nil
	}
	return u.Logger
}
