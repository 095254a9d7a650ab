package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// CommandHandler answers a single CDP command. Returning a nil result
// and nil error replies with an empty object result.
type CommandHandler func(method string, params json.RawMessage) (result interface{}, err error)

type wireRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wireResponse struct {
	ID     int64       `json:"id,omitempty"`
	Method string      `json:"method,omitempty"`
	Params interface{} `json:"params,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

// FakeCDPServer is a minimal CDP inspector endpoint for tests: it
// accepts one WebSocket connection, answers commands via a
// CommandHandler, and lets the test push events on demand.
type FakeCDPServer struct {
	t       *testing.T
	server  *httptest.Server
	handler CommandHandler

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	sub     chan struct{}
}

// NewFakeCDPServer starts the fake server. Tests typically call
// Dial-equivalent code against WebSocketURL().
func NewFakeCDPServer(t *testing.T, handler CommandHandler) *FakeCDPServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	f := &FakeCDPServer{t: t, handler: handler, sub: make(chan struct{})}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("fakecdp upgrade: %v", err)
			return
		}
		f.mu.Lock()
		f.conn = conn
		close(f.sub)
		f.mu.Unlock()
		f.serve(conn)
	}))

	t.Cleanup(f.server.Close)
	return f
}

// WebSocketURL returns the ws:// URL a Dial call should connect to.
func (f *FakeCDPServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
}

func (f *FakeCDPServer) serve(conn *websocket.Conn) {
	for {
		var req wireRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		result, err := f.handler(req.Method, req.Params)
		if err != nil {
			f.write(conn, wireResponse{ID: req.ID, Error: map[string]interface{}{"code": -32000, "message": err.Error()}})
			continue
		}
		if result == nil {
			result = map[string]interface{}{}
		}
		f.write(conn, wireResponse{ID: req.ID, Result: result})
	}
}

// write serializes WriteJSON calls; replies from serve and events from
// Emit would otherwise race on the connection.
func (f *FakeCDPServer) write(conn *websocket.Conn, msg wireResponse) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	conn.WriteJSON(msg)
}

// Emit sends an unsolicited CDP event to the connected client, once
// the connection has been established.
func (f *FakeCDPServer) Emit(method string, params interface{}) {
	<-f.sub
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		f.t.Fatalf("fakecdp: Emit(%s) before client connected", method)
		return
	}
	f.write(conn, wireResponse{Method: method, Params: params})
}
