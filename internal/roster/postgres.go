package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresRosterTableName   = "tindroid_roster"
	postgresOperationTimeout  = 5 * time.Second
	postgresRosterKindUser    = "user"
	postgresRosterKindTopic   = "topic"
	postgresRosterSetupSchema = `
		CREATE TABLE IF NOT EXISTS ` + postgresRosterTableName + ` (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			card TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (kind, id)
		)`
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresRoster reads profiles from the shared account database. The
// connection is opened lazily on first lookup, matching how the engine may
// be constructed before the database is reachable.
type PostgresRoster struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresRoster(dsn string) (*PostgresRoster, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresRoster{dsn: dsn, openDB: sql.Open}, nil
}

func (r *PostgresRoster) UserGet(id string) (*Card, bool) {
	return r.get(postgresRosterKindUser, id)
}

func (r *PostgresRoster) TopicGet(name string) (*Card, bool) {
	return r.get(postgresRosterKindTopic, name)
}

func (r *PostgresRoster) PutUser(id string, card Card) error {
	return r.put(postgresRosterKindUser, id, card)
}

func (r *PostgresRoster) PutTopic(name string, card Card) error {
	return r.put(postgresRosterKindTopic, name, card)
}

func (r *PostgresRoster) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRoster) get(kind, id string) (*Card, bool) {
	if r == nil {
		return nil, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	if err := r.ensureReady(); err != nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	var payload string
	err := r.db.QueryRowContext(ctx,
		"SELECT card FROM "+postgresRosterTableName+" WHERE kind = $1 AND id = $2",
		kind, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	var card Card
	if err := json.Unmarshal([]byte(payload), &card); err != nil {
		return nil, false
	}
	return &card, true
}

func (r *PostgresRoster) put(kind, id string, card Card) error {
	if r == nil {
		return ErrInvalidInput
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}
	if err := r.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(card)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO `+postgresRosterTableName+` (kind, id, card, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, id)
		DO UPDATE SET card = EXCLUDED.card, updated_at = NOW()`,
		kind, id, string(payload))
	return err
}

func (r *PostgresRoster) ensureReady() error {
	if r == nil {
		return ErrInvalidInput
	}
	r.initOnce.Do(func() {
		db, err := r.openDB("postgres", r.dsn)
		if err != nil {
			r.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		if _, err := db.ExecContext(ctx, postgresRosterSetupSchema); err != nil {
			_ = db.Close()
			r.initErr = err
			return
		}
		r.db = db
	})
	return r.initErr
}
