package dispatch

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type fileOutboxState struct {
	Ops     map[string][]PendingOperation `json:"ops"`
	NextSeq map[string]int64              `json:"nextSeq"`
}

// fileOutbox keeps the pending-operation log in a JSON snapshot rewritten
// atomically on every mutation. Message volumes here are whatever one user
// managed to type while offline, so a full rewrite is fine.
type fileOutbox struct {
	path  string
	mu    sync.Mutex
	state fileOutboxState
}

func NewFileOutbox(path string) (Outbox, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	o := &fileOutbox{
		path: path,
		state: fileOutboxState{
			Ops:     map[string][]PendingOperation{},
			NextSeq: map[string]int64{},
		},
	}
	if err := o.load(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *fileOutbox) Append(op PendingOperation) (PendingOperation, error) {
	op.Topic = strings.TrimSpace(op.Topic)
	if op.Topic == "" || (op.Kind != OpPublish && op.Kind != OpDelete) {
		return PendingOperation{}, ErrInvalidInput
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.NextSeq[op.Topic]++
	op.Seq = o.state.NextSeq[op.Topic]
	if op.Status == "" {
		op.Status = StatusQueued
	}
	if op.CreatedAt == "" {
		op.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	o.state.Ops[op.Topic] = append(o.state.Ops[op.Topic], op)
	if err := o.saveLocked(); err != nil {
		ops := o.state.Ops[op.Topic]
		o.state.Ops[op.Topic] = ops[:len(ops)-1]
		o.state.NextSeq[op.Topic]--
		return PendingOperation{}, err
	}
	return op, nil
}

func (o *fileOutbox) List(topic string) ([]PendingOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ops := o.state.Ops[strings.TrimSpace(topic)]
	result := append([]PendingOperation(nil), ops...)
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (o *fileOutbox) Get(topic string, seq int64) (PendingOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, op := range o.state.Ops[strings.TrimSpace(topic)] {
		if op.Seq == seq {
			return op, nil
		}
	}
	return PendingOperation{}, ErrNotFound
}

func (o *fileOutbox) SetStatus(topic string, seq int64, status OpStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ops := o.state.Ops[strings.TrimSpace(topic)]
	for i := range ops {
		if ops[i].Seq == seq {
			previous := ops[i].Status
			ops[i].Status = status
			if err := o.saveLocked(); err != nil {
				ops[i].Status = previous
				return err
			}
			return nil
		}
	}
	return ErrNotFound
}

func (o *fileOutbox) Remove(topic string, seq int64) error {
	topic = strings.TrimSpace(topic)
	o.mu.Lock()
	defer o.mu.Unlock()
	ops := o.state.Ops[topic]
	for i := range ops {
		if ops[i].Seq == seq {
			o.state.Ops[topic] = append(ops[:i:i], ops[i+1:]...)
			if err := o.saveLocked(); err != nil {
				o.state.Ops[topic] = ops
				return err
			}
			return nil
		}
	}
	return ErrNotFound
}

func (o *fileOutbox) Rename(oldTopic, newTopic string) error {
	oldTopic = strings.TrimSpace(oldTopic)
	newTopic = strings.TrimSpace(newTopic)
	if oldTopic == "" || newTopic == "" {
		return ErrInvalidInput
	}
	if oldTopic == newTopic {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	// Offset moved sequence ids past the target's allocation high-water
	// mark so the merged topic keeps unique, monotonic ids.
	offset := o.state.NextSeq[newTopic]
	ops := o.state.Ops[oldTopic]
	for i := range ops {
		ops[i].Topic = newTopic
		ops[i].Seq += offset
	}
	o.state.Ops[newTopic] = append(o.state.Ops[newTopic], ops...)
	delete(o.state.Ops, oldTopic)
	o.state.NextSeq[newTopic] = offset + o.state.NextSeq[oldTopic]
	delete(o.state.NextSeq, oldTopic)
	return o.saveLocked()
}

func (o *fileOutbox) Close() error {
	return nil
}

func (o *fileOutbox) load() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, err := os.ReadFile(o.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var state fileOutboxState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.Ops == nil {
		state.Ops = map[string][]PendingOperation{}
	}
	if state.NextSeq == nil {
		state.NextSeq = map[string]int64{}
	}
	o.state = state
	return nil
}

func (o *fileOutbox) saveLocked() error {
	data, err := json.Marshal(o.state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return err
	}
	tmp := o.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, o.path)
}
