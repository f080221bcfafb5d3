package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"
)

const defaultDeliveryTimeout = 10 * time.Second

// Coordinator owns redelivery of pending operations for one topic. Every
// delivery attempt runs as a queue task, so attempts never race each other
// and never interleave with manually triggered submissions.
type Coordinator struct {
	topic     *Topic
	outbox    Outbox
	transport Transport
	queue     *WorkQueue
	ui        UI
	logger    Logger
	timeout   time.Duration
}

func NewCoordinator(topic *Topic, outbox Outbox, transport Transport, queue *WorkQueue, ui UI, logger Logger) (*Coordinator, error) {
	if topic == nil || outbox == nil || transport == nil || queue == nil {
		return nil, ErrInvalidInput
	}
	if ui == nil {
		ui = NoopUI{}
	}
	return &Coordinator{
		topic:     topic,
		outbox:    outbox,
		transport: transport,
		queue:     queue,
		ui:        ui,
		logger:    logger,
		timeout:   defaultDeliveryTimeout,
	}, nil
}

// Send records a publish operation and schedules its delivery. The record is
// created and the call returns immediately even while the queue is paused;
// delivery happens once the subscription is attached.
func (c *Coordinator) Send(content string) (PendingOperation, error) {
	if c == nil {
		return PendingOperation{}, ErrInvalidInput
	}
	if strings.TrimSpace(content) == "" {
		return PendingOperation{}, ErrInvalidInput
	}
	op, err := c.outbox.Append(PendingOperation{
		Topic:   c.topic.Name(),
		Kind:    OpPublish,
		Content: content,
	})
	if err != nil {
		return PendingOperation{}, err
	}
	c.ui.Refresh()
	if err := c.queue.Submit(func() {
		c.deliverBySeq(op.Seq)
		c.ui.Refresh()
	}); err != nil {
		return op, err
	}
	return op, nil
}

// Delete records a message-deletion operation and schedules its delivery.
func (c *Coordinator) Delete(seqs []int) (PendingOperation, error) {
	if c == nil {
		return PendingOperation{}, ErrInvalidInput
	}
	if len(seqs) == 0 {
		return PendingOperation{}, ErrInvalidInput
	}
	op, err := c.outbox.Append(PendingOperation{
		Topic:   c.topic.Name(),
		Kind:    OpDelete,
		DelSeqs: append([]int(nil), seqs...),
	})
	if err != nil {
		return PendingOperation{}, err
	}
	c.ui.Refresh()
	if err := c.queue.Submit(func() {
		c.deliverBySeq(op.Seq)
		c.ui.Refresh()
	}); err != nil {
		return op, err
	}
	return op, nil
}

// SyncAll schedules redelivery of every pending operation in ascending
// sequence order. A transient failure stops the walk and leaves the rest
// queued for the next attach; a definitive rejection marks that operation
// failed and moves on.
func (c *Coordinator) SyncAll() error {
	if c == nil {
		return ErrInvalidInput
	}
	c.ui.Refresh()
	return c.queue.Submit(func() {
		ops, err := c.outbox.List(c.topic.Name())
		if err != nil {
			logf(c.logger, "sync: list %q: %v", c.topic.Name(), err)
			c.ui.Refresh()
			return
		}
		for _, op := range ops {
			// Failed operations wait for an explicit SyncOne. An in-flight
			// status can only be a leftover from a crashed run, since
			// deliveries are serialized on this queue; redeliver it.
			if op.Status == StatusFailed {
				continue
			}
			if err := c.deliver(op); err != nil && isTransient(err) {
				break
			}
		}
		c.ui.Refresh()
	})
}

// SyncOne schedules redelivery of a single operation, including one stuck in
// the failed state after a definitive rejection.
func (c *Coordinator) SyncOne(seq int64) error {
	if c == nil {
		return ErrInvalidInput
	}
	return c.queue.Submit(func() {
		c.deliverBySeq(seq)
		c.ui.Refresh()
	})
}

func (c *Coordinator) deliverBySeq(seq int64) {
	op, err := c.outbox.Get(c.topic.Name(), seq)
	if err != nil {
		// Already delivered and removed, or never existed.
		return
	}
	_ = c.deliver(op)
}

// deliver runs one transport attempt. Must be called from a queue task.
func (c *Coordinator) deliver(op PendingOperation) error {
	topic := c.topic.Name()
	if err := c.outbox.SetStatus(topic, op.Seq, StatusInFlight); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var err error
	switch op.Kind {
	case OpPublish:
		_, err = c.transport.Publish(ctx, topic, op.Content)
	case OpDelete:
		_, err = c.transport.DeleteMessages(ctx, topic, op.DelSeqs)
	default:
		err = ErrInvalidInput
	}
	if err == nil {
		if removeErr := c.outbox.Remove(topic, op.Seq); removeErr != nil {
			logf(c.logger, "sync: remove %s #%d: %v", topic, op.Seq, removeErr)
		}
		if op.Kind == OpPublish && c.topic.Archived() {
			c.topic.SetArchived(false)
		}
		return nil
	}
	if isTransient(err) {
		if statusErr := c.outbox.SetStatus(topic, op.Seq, StatusQueued); statusErr != nil {
			logf(c.logger, "sync: requeue %s #%d: %v", topic, op.Seq, statusErr)
		}
		return err
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		c.ui.Toast(serverErr.Text)
	} else {
		c.ui.Toast(err.Error())
	}
	if statusErr := c.outbox.SetStatus(topic, op.Seq, StatusFailed); statusErr != nil {
		logf(c.logger, "sync: fail %s #%d: %v", topic, op.Seq, statusErr)
	}
	return err
}
