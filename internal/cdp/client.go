// Package cdp implements a minimal Chrome DevTools Protocol JSON-RPC
// peer over a WebSocket connection to a single inspector target.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tmc/nodedbg/internal/dbgerr"
)

// EventListener is invoked for every event matching the method it was
// registered under, in registration order.
type EventListener func(params json.RawMessage)

type request struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type response struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

type pendingCall struct {
	result chan json.RawMessage
	err    chan error
}

// Client is a bidirectional JSON-RPC peer for one inspector WebSocket
// connection. It is safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	nextID int64

	// writeMu serializes writers on the socket; the websocket package
	// supports at most one concurrent writer per connection.
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[int64]*pendingCall
	listeners map[string][]EventListener
	closed    bool
	closeErr  error

	done chan struct{}
}

// Dial opens a WebSocket connection to the inspector endpoint and
// starts the read loop.
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, dbgerr.Wrapf(err, dbgerr.TransportClosed, "dial inspector endpoint %s", wsURL)
	}

	c := &Client{
		conn:      conn,
		pending:   make(map[int64]*pendingCall),
		listeners: make(map[string][]EventListener),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send issues a CDP command and waits for its reply or for the
// connection to close.
func (c *Client) Send(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)

	call := &pendingCall{result: make(chan json.RawMessage, 1), err: make(chan error, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, dbgerr.New(dbgerr.TransportClosed, "cdp connection already closed")
	}
	c.pending[id] = call
	c.mu.Unlock()

	req := request{ID: id, Method: method, Params: params}
	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, dbgerr.Wrapf(err, dbgerr.TargetCommandFailed, "send %s", method)
	}

	select {
	case res := <-call.result:
		return res, nil
	case err := <-call.err:
		return nil, err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closeErrOrDefault()
	}
}

// On registers a permanent listener for the given dotted method name.
// Listeners fire in registration order and a panicking listener is
// recovered so it cannot take down the read loop.
func (c *Client) On(method string, fn EventListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[method] = append(c.listeners[method], fn)
}

// Closed returns a channel closed once the connection is torn down.
func (c *Client) Closed() <-chan struct{} {
	return c.done
}

// Close closes the underlying socket and fails every pending call
// with a transport-closed error.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeErr = dbgerr.New(dbgerr.TransportClosed, "cdp connection closed")
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, call := range pending {
		call.err <- c.closeErr
	}

	err := c.conn.Close()
	close(c.done)
	return err
}

func (c *Client) closeErrOrDefault() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return dbgerr.New(dbgerr.TransportClosed, "cdp connection closed")
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		var msg response
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msg.ID != 0 {
			c.deliverReply(msg)
			continue
		}
		c.dispatchEvent(msg.Method, msg.Params)
	}
}

func (c *Client) deliverReply(msg response) {
	c.mu.Lock()
	call, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if msg.Error != nil {
		call.err <- dbgerr.Wrap(msg.Error, dbgerr.TargetCommandFailed, "cdp command failed")
		return
	}
	call.result <- msg.Result
}

func (c *Client) dispatchEvent(method string, params json.RawMessage) {
	c.mu.Lock()
	listeners := append([]EventListener(nil), c.listeners[method]...)
	c.mu.Unlock()

	for _, fn := range listeners {
		c.invokeListener(fn, params)
	}
}

func (c *Client) invokeListener(fn EventListener, params json.RawMessage) {
	defer func() {
		recover() // a misbehaving listener must not take down the read loop
	}()
	fn(params)
}
