// tindroid-push triages a raw push payload the way the background push
// handler does: validate the shape, consult the contact roster and the
// visible-topic marker, and print the resulting notification, if any, as
// JSON. Useful for debugging server-side push templates.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"strings"

	"github.com/NeoChow/tindroid/internal/dispatch"
	"github.com/NeoChow/tindroid/internal/notify"
	"github.com/NeoChow/tindroid/internal/roster"
)

func main() {
	payload := flag.String("payload", strings.TrimSpace(os.Getenv("TINDROID_PUSH_PAYLOAD")), "raw push payload (defaults to stdin)")
	rosterDSN := flag.String("roster", strings.TrimSpace(os.Getenv("TINDROID_ROSTER_DSN")), "contact roster DSN (path, file://, memory://, postgres://)")
	visibleTopic := flag.String("visible-topic", strings.TrimSpace(os.Getenv("TINDROID_VISIBLE_TOPIC")), "topic currently on screen, if any")
	flag.Parse()

	raw := []byte(*payload)
	if len(raw) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("failed to read payload from stdin: %v", err)
		}
		raw = data
	}

	contacts, err := roster.BuildFromDSN(*rosterDSN)
	if err != nil {
		log.Fatalf("failed to initialize roster: %v", err)
	}
	if contacts != nil {
		defer contacts.Close()
	}

	posted, shown, err := runTriage(raw, *visibleTopic, contacts, log.Default())
	if err != nil {
		log.Fatalf("rejected payload: %v", err)
	}
	if !shown {
		log.Printf("suppressed")
		return
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(posted); err != nil {
		log.Fatalf("failed to encode decision: %v", err)
	}
}

func runTriage(raw []byte, visibleTopic string, contacts roster.Roster, logger notify.Logger) (notify.Notification, bool, error) {
	dispatch.SetVisibleTopic(visibleTopic)
	notifier := notify.NewMemoryNotifier()
	handler, err := notify.NewHandler(contacts, notifier, logger)
	if err != nil {
		return notify.Notification{}, false, err
	}
	if err := handler.Handle(raw); err != nil {
		return notify.Notification{}, false, err
	}
	active := notifier.Active()
	if len(active) == 0 {
		return notify.Notification{}, false, nil
	}
	return active[0], true, nil
}
