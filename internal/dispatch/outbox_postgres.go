package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresOutboxTableName  = "tindroid_outbox"
	postgresOperationTimeout = 5 * time.Second
	postgresOutboxSetupSchema = `
		CREATE TABLE IF NOT EXISTS ` + postgresOutboxTableName + ` (
			topic TEXT NOT NULL,
			seq BIGINT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			del_seqs TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (topic, seq)
		)`
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresOutbox keeps pending operations in a shared database so the queue
// survives process restarts and can be drained by another instance. Sequence
// ids stay per-topic monotonic: Append takes an advisory transaction lock on
// the topic before reading MAX(seq).
type PostgresOutbox struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresOutbox(dsn string) (Outbox, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresOutbox{dsn: dsn, openDB: sql.Open}, nil
}

func (o *PostgresOutbox) Append(op PendingOperation) (PendingOperation, error) {
	op.Topic = strings.TrimSpace(op.Topic)
	if op.Topic == "" || (op.Kind != OpPublish && op.Kind != OpDelete) {
		return PendingOperation{}, ErrInvalidInput
	}
	if err := o.ensureReady(); err != nil {
		return PendingOperation{}, err
	}
	if op.Status == "" {
		op.Status = StatusQueued
	}
	if op.CreatedAt == "" {
		op.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	delSeqs, err := encodeDelSeqs(op.DelSeqs)
	if err != nil {
		return PendingOperation{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return PendingOperation{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	lockKey := postgresOutboxLockKey(op.Topic)
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey); err != nil {
		return PendingOperation{}, err
	}
	var maxSeq int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM "+postgresOutboxTableName+" WHERE topic = $1",
		op.Topic).Scan(&maxSeq)
	if err != nil {
		return PendingOperation{}, err
	}
	op.Seq = maxSeq + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+postgresOutboxTableName+` (topic, seq, kind, content, del_seqs, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		op.Topic, op.Seq, string(op.Kind), op.Content, delSeqs, string(op.Status))
	if err != nil {
		return PendingOperation{}, err
	}
	if err := tx.Commit(); err != nil {
		return PendingOperation{}, err
	}
	committed = true
	return op, nil
}

func (o *PostgresOutbox) List(topic string) ([]PendingOperation, error) {
	topic = strings.TrimSpace(topic)
	if err := o.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	rows, err := o.db.QueryContext(ctx, `
		SELECT topic, seq, kind, content, del_seqs, status, created_at
		FROM `+postgresOutboxTableName+`
		WHERE topic = $1
		ORDER BY seq ASC`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := make([]PendingOperation, 0)
	for rows.Next() {
		op, scanErr := scanPendingOperation(rows)
		if scanErr != nil {
			continue
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (o *PostgresOutbox) Get(topic string, seq int64) (PendingOperation, error) {
	topic = strings.TrimSpace(topic)
	if err := o.ensureReady(); err != nil {
		return PendingOperation{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	row := o.db.QueryRowContext(ctx, `
		SELECT topic, seq, kind, content, del_seqs, status, created_at
		FROM `+postgresOutboxTableName+`
		WHERE topic = $1 AND seq = $2`, topic, seq)
	op, err := scanPendingOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingOperation{}, ErrNotFound
	}
	if err != nil {
		return PendingOperation{}, err
	}
	return op, nil
}

func (o *PostgresOutbox) SetStatus(topic string, seq int64, status OpStatus) error {
	topic = strings.TrimSpace(topic)
	if err := o.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	result, err := o.db.ExecContext(ctx,
		"UPDATE "+postgresOutboxTableName+" SET status = $1 WHERE topic = $2 AND seq = $3",
		string(status), topic, seq)
	if err != nil {
		return err
	}
	return resultNotFound(result)
}

func (o *PostgresOutbox) Remove(topic string, seq int64) error {
	topic = strings.TrimSpace(topic)
	if err := o.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	result, err := o.db.ExecContext(ctx,
		"DELETE FROM "+postgresOutboxTableName+" WHERE topic = $1 AND seq = $2",
		topic, seq)
	if err != nil {
		return err
	}
	return resultNotFound(result)
}

func (o *PostgresOutbox) Rename(oldTopic, newTopic string) error {
	oldTopic = strings.TrimSpace(oldTopic)
	newTopic = strings.TrimSpace(newTopic)
	if oldTopic == "" || newTopic == "" {
		return ErrInvalidInput
	}
	if oldTopic == newTopic {
		return nil
	}
	if err := o.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock both names so a concurrent Append under either cannot interleave
	// with the move.
	for _, key := range []int64{postgresOutboxLockKey(oldTopic), postgresOutboxLockKey(newTopic)} {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
			return err
		}
	}
	var offset int64
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM "+postgresOutboxTableName+" WHERE topic = $1",
		newTopic).Scan(&offset)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE "+postgresOutboxTableName+" SET topic = $1, seq = seq + $2 WHERE topic = $3",
		newTopic, offset, oldTopic)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (o *PostgresOutbox) Close() error {
	if o == nil || o.db == nil {
		return nil
	}
	return o.db.Close()
}

func (o *PostgresOutbox) ensureReady() error {
	if o == nil {
		return ErrInvalidInput
	}
	o.initOnce.Do(func() {
		db, err := o.openDB("postgres", o.dsn)
		if err != nil {
			o.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		if _, err := db.ExecContext(ctx, postgresOutboxSetupSchema); err != nil {
			_ = db.Close()
			o.initErr = err
			return
		}
		o.db = db
	})
	return o.initErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingOperation(row rowScanner) (PendingOperation, error) {
	var op PendingOperation
	var kind, status, delSeqs string
	var createdAt time.Time
	if err := row.Scan(&op.Topic, &op.Seq, &kind, &op.Content, &delSeqs, &status, &createdAt); err != nil {
		return PendingOperation{}, err
	}
	op.Kind = OpKind(kind)
	op.Status = OpStatus(status)
	op.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	if delSeqs != "" {
		if err := json.Unmarshal([]byte(delSeqs), &op.DelSeqs); err != nil {
			return PendingOperation{}, err
		}
	}
	return op, nil
}

func encodeDelSeqs(seqs []int) (string, error) {
	if len(seqs) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(seqs)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func resultNotFound(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func postgresOutboxLockKey(topic string) int64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(postgresOutboxTableName))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(strings.TrimSpace(topic)))
	return int64(hasher.Sum64())
}
