package cdp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tmc/nodedbg/internal/cdp"
	"github.com/tmc/nodedbg/internal/testutil"
)

func TestClientSendReceivesResult(t *testing.T) {
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		if method == "Debugger.enable" {
			return map[string]string{"debuggerId": "1"}, nil
		}
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cdp.Dial(ctx, srv.WebSocketURL())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	res, err := client.Send(ctx, "Debugger.enable", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var decoded struct {
		DebuggerID string `json:"debuggerId"`
	}
	if err := json.Unmarshal(res, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if decoded.DebuggerID != "1" {
		t.Errorf("expected debuggerId=1, got %q", decoded.DebuggerID)
	}
}

func TestClientEventDispatchOrder(t *testing.T) {
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cdp.Dial(ctx, srv.WebSocketURL())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	var order []int
	done := make(chan struct{})

	client.On("Debugger.paused", func(json.RawMessage) {
		order = append(order, 1)
	})
	client.On("Debugger.paused", func(json.RawMessage) {
		order = append(order, 2)
		close(done)
	})

	srv.Emit("Debugger.paused", map[string]string{"reason": "other"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event dispatch")
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected listeners invoked in registration order, got %v", order)
	}
}

func TestClientCloseFailsPending(t *testing.T) {
	block := make(chan struct{})
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		<-block // never reply, forcing the command to stay pending until close
		return nil, nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cdp.Dial(ctx, srv.WebSocketURL())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Send(context.Background(), "Debugger.resume", nil)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	client.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected Send to fail after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pending call to fail on close")
	}
}
