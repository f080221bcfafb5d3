package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/NeoChow/tindroid/internal/dispatch"
	"github.com/NeoChow/tindroid/internal/roster"
	"github.com/NeoChow/tindroid/internal/transport"
)

func main() {
	serverURL := flag.String("server", envOrDefault("TINDROID_SERVER", "ws://127.0.0.1:6060/v0/channels"), "chat server websocket URL")
	topicName := flag.String("topic", strings.TrimSpace(os.Getenv("TINDROID_TOPIC")), "topic to open")
	loginScheme := flag.String("login-scheme", envOrDefault("TINDROID_LOGIN_SCHEME", "basic"), "authentication scheme")
	loginSecret := flag.String("login-secret", strings.TrimSpace(os.Getenv("TINDROID_SECRET")), "authentication secret")
	outboxDSN := flag.String("outbox", envOrDefault("TINDROID_OUTBOX_DSN", defaultOutboxPath()), "outbox DSN (path, file://, memory://, postgres://)")
	rosterDSN := flag.String("roster", strings.TrimSpace(os.Getenv("TINDROID_ROSTER_DSN")), "contact roster DSN (path, file://, memory://, postgres://)")
	dialTimeout := flag.Duration("dial-timeout", durationEnv("TINDROID_DIAL_TIMEOUT", 15*time.Second), "connect timeout")
	flag.Parse()

	if strings.TrimSpace(*topicName) == "" {
		log.Fatalf("topic is required (--topic or TINDROID_TOPIC)")
	}

	topic, err := dispatch.NewTopic(*topicName)
	if err != nil {
		log.Fatalf("invalid topic: %v", err)
	}
	outbox, err := dispatch.BuildOutboxFromDSN(*outboxDSN)
	if err != nil {
		log.Fatalf("failed to initialize outbox: %v", err)
	}
	defer outbox.Close()

	contacts, err := roster.BuildFromDSN(*rosterDSN)
	if err != nil {
		log.Fatalf("failed to initialize roster: %v", err)
	}
	if contacts != nil {
		defer contacts.Close()
		if card, ok := contacts.TopicGet(topic.Name()); ok {
			topic.SetCard(card)
		}
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ui := &dispatch.LoggingUI{Logger: log.Default()}
	queue := dispatch.NewWorkQueue()

	// The router does not exist yet when the connection comes up; the sink
	// drops events delivered before it is published. The login event, the
	// first one that matters, is only sent after wiring completes.
	sink, publishRouter := routerSink()

	dialCtx, cancel := context.WithTimeout(rootCtx, *dialTimeout)
	client, err := transport.Dial(dialCtx, *serverURL, sink, log.Default())
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverURL, err)
	}
	defer client.Close()

	coord, err := dispatch.NewCoordinator(topic, outbox, client, queue, ui, log.Default())
	if err != nil {
		log.Fatalf("failed to initialize coordinator: %v", err)
	}
	session, err := dispatch.NewSession(dispatch.SessionConfig{
		Topic:       topic,
		Coordinator: coord,
		Transport:   client,
		Queue:       queue,
		UI:          ui,
		Logger:      log.Default(),
	})
	if err != nil {
		log.Fatalf("failed to initialize session: %v", err)
	}
	router, err := dispatch.NewRouter(session, ui, log.Default())
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	publishRouter(router)
	go router.Run(rootCtx)
	defer session.Shutdown()

	if *loginSecret != "" {
		loginCtx, cancel := context.WithTimeout(rootCtx, *dialTimeout)
		_, err := client.Login(loginCtx, *loginScheme, *loginSecret)
		cancel()
		if err != nil {
			log.Fatalf("login failed: %v", err)
		}
		// The login event re-attaches through the router.
	} else if err := session.Attach(); err != nil {
		log.Fatalf("attach failed: %v", err)
	}
	session.SetFocused(true)
	defer session.SetFocused(false)

	log.Printf("tindroid attached to %s; type to send, /help for commands", topic.Name())
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-rootCtx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if handleLine(line, session, coord, topic) {
				return
			}
		}
	}
}

// handleLine runs one console command. Returns true when the client should
// exit.
func handleLine(line string, session *dispatch.Session, coord *dispatch.Coordinator, topic *dispatch.Topic) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		session.SendKeyPress()
		if _, err := coord.Send(line); err != nil {
			log.Printf("send failed: %v", err)
		}
		return false
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true
	case "/leave":
		if err := session.Detach(); err != nil {
			log.Printf("leave failed: %v", err)
		}
	case "/del":
		seqs := parseSeqs(fields[1:])
		if len(seqs) == 0 {
			log.Printf("usage: /del <seq> [seq...]")
			return false
		}
		if _, err := coord.Delete(seqs); err != nil {
			log.Printf("delete failed: %v", err)
		}
	case "/retry":
		if len(fields) != 2 {
			log.Printf("usage: /retry <seq>")
			return false
		}
		seq, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			log.Printf("usage: /retry <seq>")
			return false
		}
		if err := coord.SyncOne(seq); err != nil {
			log.Printf("retry failed: %v", err)
		}
	case "/sync":
		if err := coord.SyncAll(); err != nil {
			log.Printf("sync failed: %v", err)
		}
	case "/focus":
		session.SetFocused(true)
	case "/blur":
		session.SetFocused(false)
	case "/archive":
		topic.SetArchived(true)
		log.Printf("archived %s; sending a message unarchives it", topic.Name())
	case "/unarchive":
		topic.SetArchived(false)
		log.Printf("unarchived %s", topic.Name())
	case "/help":
		log.Printf("commands: /del <seq>..., /retry <seq>, /sync, /leave, /archive, /unarchive, /focus, /blur, /quit")
	default:
		log.Printf("unknown command %q, try /help", fields[0])
	}
	return false
}

// routerSink returns an event sink safe to hand to the transport before the
// router exists, plus the publish hook that makes the router visible to it.
// The read loop and main wire-up run on different goroutines, so the
// handoff is an atomic pointer; events delivered before publish are dropped.
func routerSink() (transport.EventSink, func(*dispatch.Router)) {
	var router atomic.Pointer[dispatch.Router]
	sink := func(evt dispatch.Event) {
		router.Load().Deliver(evt)
	}
	return sink, router.Store
}

func parseSeqs(fields []string) []int {
	seqs := make([]int, 0, len(fields))
	for _, field := range fields {
		seq, err := strconv.Atoi(field)
		if err != nil {
			return nil
		}
		seqs = append(seqs, seq)
	}
	return seqs
}

func defaultOutboxPath() string {
	return "file://" + filepath.Join(".tindroid", "outbox.json")
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
