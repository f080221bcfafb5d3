package dispatch

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type OpKind string

const (
	OpPublish OpKind = "pub"
	OpDelete  OpKind = "del"
)

type OpStatus string

const (
	StatusQueued    OpStatus = "queued"
	StatusInFlight  OpStatus = "inflight"
	StatusDelivered OpStatus = "delivered"
	StatusFailed    OpStatus = "failed"
)

// PendingOperation is one locally queued change waiting for delivery.
// Sequence ids are assigned by the outbox, monotonically increasing within
// a topic, and define delivery order. Only the sync coordinator mutates an
// operation after creation.
type PendingOperation struct {
	Topic     string   `json:"topic"`
	Seq       int64    `json:"seq"`
	Kind      OpKind   `json:"kind"`
	Content   string   `json:"content,omitempty"`
	DelSeqs   []int    `json:"delSeqs,omitempty"`
	Status    OpStatus `json:"status"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

// Outbox is the durable log of pending operations. List returns operations
// in ascending sequence order; Remove is the delivery acknowledgement.
type Outbox interface {
	Append(op PendingOperation) (PendingOperation, error)
	List(topic string) ([]PendingOperation, error)
	Get(topic string, seq int64) (PendingOperation, error)
	SetStatus(topic string, seq int64, status OpStatus) error
	Remove(topic string, seq int64) error

	// Rename moves every operation of a topic under its permanent name
	// after the server rewrites an ephemeral one.
	Rename(oldTopic, newTopic string) error

	Close() error
}

type memoryOutbox struct {
	mu      sync.Mutex
	ops     map[string][]PendingOperation
	nextSeq map[string]int64
}

func NewMemoryOutbox() Outbox {
	return &memoryOutbox{
		ops:     map[string][]PendingOperation{},
		nextSeq: map[string]int64{},
	}
}

func (o *memoryOutbox) Append(op PendingOperation) (PendingOperation, error) {
	op.Topic = strings.TrimSpace(op.Topic)
	if op.Topic == "" || (op.Kind != OpPublish && op.Kind != OpDelete) {
		return PendingOperation{}, ErrInvalidInput
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextSeq[op.Topic]++
	op.Seq = o.nextSeq[op.Topic]
	if op.Status == "" {
		op.Status = StatusQueued
	}
	if op.CreatedAt == "" {
		op.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	o.ops[op.Topic] = append(o.ops[op.Topic], op)
	return op, nil
}

func (o *memoryOutbox) List(topic string) ([]PendingOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ops := o.ops[strings.TrimSpace(topic)]
	result := append([]PendingOperation(nil), ops...)
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (o *memoryOutbox) Get(topic string, seq int64) (PendingOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, op := range o.ops[strings.TrimSpace(topic)] {
		if op.Seq == seq {
			return op, nil
		}
	}
	return PendingOperation{}, ErrNotFound
}

func (o *memoryOutbox) SetStatus(topic string, seq int64, status OpStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ops := o.ops[strings.TrimSpace(topic)]
	for i := range ops {
		if ops[i].Seq == seq {
			ops[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (o *memoryOutbox) Remove(topic string, seq int64) error {
	topic = strings.TrimSpace(topic)
	o.mu.Lock()
	defer o.mu.Unlock()
	ops := o.ops[topic]
	for i := range ops {
		if ops[i].Seq == seq {
			o.ops[topic] = append(ops[:i:i], ops[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (o *memoryOutbox) Rename(oldTopic, newTopic string) error {
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
	offset := o.nextSeq[newTopic]
	ops := o.ops[oldTopic]
	for i := range ops {
		ops[i].Topic = newTopic
		ops[i].Seq += offset
	}
	o.ops[newTopic] = append(o.ops[newTopic], ops...)
	delete(o.ops, oldTopic)
	o.nextSeq[newTopic] = offset + o.nextSeq[oldTopic]
	delete(o.nextSeq, oldTopic)
	return nil
}

func (o *memoryOutbox) Close() error {
	return nil
}
