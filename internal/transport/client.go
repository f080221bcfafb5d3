package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/NeoChow/tindroid/internal/dispatch"
	"github.com/NeoChow/tindroid/internal/roster"
)

const writeTimeout = 10 * time.Second

// EventSink receives unsolicited server events. Wired to the router's
// Deliver; must not block.
type EventSink func(dispatch.Event)

// Client is a websocket connection to the chat server implementing the
// engine's transport contract. Requests are correlated to their ctrl
// acknowledgements by id; a ctrl with a 4xx or 5xx code comes back as a
// *dispatch.ServerError, a dropped connection as dispatch.ErrNotConnected.
type Client struct {
	conn   *websocket.Conn
	sink   EventSink
	logger dispatch.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan ctrlResult
	closed  bool

	done chan struct{}
}

type ctrlResult struct {
	ctrl *dispatch.Ctrl
	err  error
}

// Dial connects to the server and starts the read loop. The sink receives
// every unsolicited event until Close.
func Dial(ctx context.Context, serverURL string, sink EventSink, logger dispatch.Logger) (*Client, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" || sink == nil {
		return nil, dispatch.ErrInvalidInput
	}
	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrNotConnected, err)
	}
	c := &Client{
		conn:    conn,
		sink:    sink,
		logger:  logger,
		pending: map[string]chan ctrlResult{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Login authenticates the session. A success is also surfaced to the sink as
// a login event, which re-attaches the open topic.
func (c *Client) Login(ctx context.Context, scheme, secret string) (*dispatch.Ctrl, error) {
	id := uuid.NewString()
	ctrl, err := c.request(ctx, id, clientFrame{Login: &loginFrame{ID: id, Scheme: scheme, Secret: secret}})
	if err != nil {
		return nil, err
	}
	c.sink(dispatch.Event{Kind: dispatch.EventLogin})
	return ctrl, nil
}

func (c *Client) Subscribe(ctx context.Context, topic string, opts dispatch.SubscribeOptions) (*dispatch.Ctrl, error) {
	id := uuid.NewString()
	frame := subFrame{ID: id, Topic: topic}
	if what := subQueryWhat(opts); what != "" {
		frame.Get = &getQuery{What: what}
	}
	return c.request(ctx, id, clientFrame{Sub: &frame})
}

func (c *Client) Publish(ctx context.Context, topic, content string) (*dispatch.Ctrl, error) {
	id := uuid.NewString()
	return c.request(ctx, id, clientFrame{Pub: &pubFrame{ID: id, Topic: topic, Content: content}})
}

func (c *Client) DeleteMessages(ctx context.Context, topic string, seqs []int) (*dispatch.Ctrl, error) {
	id := uuid.NewString()
	return c.request(ctx, id, clientFrame{Del: &delFrame{ID: id, Topic: topic, SeqList: seqs}})
}

func (c *Client) Leave(ctx context.Context, topic string) error {
	id := uuid.NewString()
	_, err := c.request(ctx, id, clientFrame{Leave: &leaveFrame{ID: id, Topic: topic}})
	return err
}

func (c *Client) NoteKeyPress(topic string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.write(ctx, clientFrame{Note: &noteFrame{Topic: topic, What: "kp"}}); err != nil {
		logf(c.logger, "transport: note kp %q: %v", topic, err)
	}
}

// Close shuts the connection down. Pending requests fail with
// dispatch.ErrNotConnected.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) request(ctx context.Context, id string, frame clientFrame) (*dispatch.Ctrl, error) {
	if c == nil {
		return nil, dispatch.ErrNotConnected
	}
	ch := make(chan ctrlResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, dispatch.ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrNotConnected, err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, dispatch.ErrNotConnected
	case result := <-ch:
		return result.ctrl, result.err
	}
}

func (c *Client) write(ctx context.Context, frame clientFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.conn, frame)
}

func (c *Client) readLoop() {
	defer c.shutdown()
	ctx := context.Background()
	for {
		var frame serverFrame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			logf(c.logger, "transport: read loop ended: %v", err)
			return
		}
		c.route(frame)
	}
}

func (c *Client) route(frame serverFrame) {
	switch {
	case frame.Ctrl != nil:
		c.resolve(frame.Ctrl)
	case frame.Data != nil:
		c.sink(dispatch.Event{
			Kind:  dispatch.EventData,
			Topic: frame.Data.Topic,
			From:  frame.Data.From,
			Seq:   frame.Data.Seq,
		})
	case frame.Pres != nil:
		c.routePres(frame.Pres)
	case frame.Info != nil:
		c.sink(dispatch.Event{
			Kind:  dispatch.EventInfo,
			Topic: frame.Info.Topic,
			From:  frame.Info.From,
			What:  frame.Info.What,
			Seq:   frame.Info.Seq,
		})
	case frame.Meta != nil:
		evt := dispatch.Event{Kind: dispatch.EventMetaDesc, Topic: frame.Meta.Topic}
		if frame.Meta.Desc != nil {
			evt.Card = &roster.Card{Fn: frame.Meta.Desc.Fn, Avatar: frame.Meta.Desc.Avatar}
		}
		c.sink(evt)
	default:
		logf(c.logger, "transport: empty server frame")
	}
}

func (c *Client) routePres(pres *presFrame) {
	switch pres.What {
	case "on", "off":
		c.sink(dispatch.Event{
			Kind:   dispatch.EventOnline,
			Topic:  pres.Topic,
			Online: pres.What == "on",
		})
	case "acs", "upd":
		// Membership and description changes both arrive as presence; the
		// follow-up meta carries the actual payload.
		c.sink(dispatch.Event{Kind: dispatch.EventSubsUpdated, Topic: pres.Topic, What: pres.What})
	default:
		c.sink(dispatch.Event{Kind: dispatch.EventPresence, Topic: pres.Topic, What: pres.What, From: pres.Src})
	}
}

func (c *Client) resolve(ctrl *ctrlFrame) {
	c.mu.Lock()
	ch, ok := c.pending[ctrl.ID]
	c.mu.Unlock()
	if !ok {
		logf(c.logger, "transport: unmatched ctrl id=%q code=%d", ctrl.ID, ctrl.Code)
		return
	}
	result := ctrlResult{}
	if ctrl.Code >= 400 {
		result.err = &dispatch.ServerError{Code: ctrl.Code, Text: ctrl.Text}
	} else {
		result.ctrl = &dispatch.Ctrl{
			ID:     ctrl.ID,
			Topic:  ctrl.Topic,
			Code:   ctrl.Code,
			Text:   ctrl.Text,
			Params: ctrl.Params,
		}
	}
	select {
	case ch <- result:
	default:
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = map[string]chan ctrlResult{}
	c.mu.Unlock()

	for _, ch := range pending {
		select {
		case ch <- ctrlResult{err: dispatch.ErrNotConnected}:
		default:
		}
	}
	close(c.done)
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	c.sink(dispatch.Event{Kind: dispatch.EventDisconnect})
}

func subQueryWhat(opts dispatch.SubscribeOptions) string {
	parts := make([]string, 0, 4)
	if opts.Desc {
		parts = append(parts, "desc")
	}
	if opts.Sub {
		parts = append(parts, "sub")
	}
	if opts.Data {
		parts = append(parts, "data")
	}
	if opts.Del {
		parts = append(parts, "del")
	}
	return strings.Join(parts, " ")
}

func logf(logger dispatch.Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
