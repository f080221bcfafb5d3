package dispatch

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type OutboxFactory func(dsn string) (Outbox, error)

var outboxFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]OutboxFactory
}{
	factories: map[string]OutboxFactory{},
}

// RegisterOutboxFactory installs an outbox backend for a custom DSN scheme.
func RegisterOutboxFactory(scheme string, factory OutboxFactory) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || factory == nil {
		return
	}
	outboxFactoryRegistry.mu.Lock()
	defer outboxFactoryRegistry.mu.Unlock()
	outboxFactoryRegistry.factories[scheme] = factory
}

func lookupOutboxFactory(scheme string) (OutboxFactory, bool) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	outboxFactoryRegistry.mu.RLock()
	defer outboxFactoryRegistry.mu.RUnlock()
	factory, ok := outboxFactoryRegistry.factories[scheme]
	return factory, ok
}

// BuildOutboxFromDSN maps a DSN onto an outbox backend. An empty DSN or
// memory:// keeps operations in process memory, a bare path or file://
// persists them as a JSON snapshot, postgres:// uses the shared database.
func BuildOutboxFromDSN(dsn string) (Outbox, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryOutbox(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupOutboxFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := outboxDSNPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileOutbox(path)
	case "memory", "mem", "inmem":
		return NewMemoryOutbox(), nil
	case "postgres", "postgresql":
		return NewPostgresOutbox(dsn)
	default:
		return nil, fmt.Errorf("unsupported outbox scheme: %s", scheme)
	}
}

func outboxDSNPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		path = strings.TrimSpace(parsed.Host)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}
