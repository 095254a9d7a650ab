package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/launcher"
	"github.com/tmc/nodedbg/internal/testutil"
)

// fakeTarget is a targetHandle double that never exits until the test
// closes it, so the session engine can be exercised without spawning a
// real runtime process.
type fakeTarget struct {
	mu       sync.Mutex
	exited   chan struct{}
	exitCode int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{exited: make(chan struct{})}
}

func (f *fakeTarget) Exited() <-chan struct{} { return f.exited }
func (f *fakeTarget) ExitCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode
}
func (f *fakeTarget) Kill()             {}
func (f *fakeTarget) SessionID() string { return "fake-session" }
func (f *fakeTarget) exit(code int) {
	f.mu.Lock()
	f.exitCode = code
	f.mu.Unlock()
	close(f.exited)
}

func pausedParams(frameID, functionName string, line int) map[string]interface{} {
	return map[string]interface{}{
		"reason": "other",
		"callFrames": []map[string]interface{}{
			{
				"callFrameId":  frameID,
				"functionName": functionName,
				"location":     map[string]interface{}{"scriptId": "1", "lineNumber": line, "columnNumber": 0},
				"url":          "file:///sample.js",
				"scopeChain":   []interface{}{},
				"this":         map[string]interface{}{"type": "undefined"},
			},
		},
	}
}

// attachForTest drives the real attach() sequence against a fakecdp
// server standing in for the inspector endpoint, and a fakeTarget
// standing in for the spawned process.
func attachForTest(t *testing.T, srv *testutil.FakeCDPServer, target *fakeTarget) (*Session, *PauseSnapshot) {
	t.Helper()

	prev := launchFn
	launchFn = func(ctx context.Context, scriptPath string, opts launcher.Options) (targetHandle, string, error) {
		return target, srv.WebSocketURL(), nil
	}
	t.Cleanup(func() { launchFn = prev })

	go func() {
		time.Sleep(20 * time.Millisecond)
		params := pausedParams("cf1", "", 0)
		params["reason"] = "Break on start"
		srv.Emit("Debugger.paused", params)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, pause, err := attach(ctx, "sample.js", defaultConfig())
	if err != nil {
		t.Fatalf("attach() error = %v", err)
	}
	return sess, pause
}

func TestAttachSucceedsOnInitialPause(t *testing.T) {
	target := newFakeTarget()
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	sess, pause := attachForTest(t, srv, target)
	defer sess.Terminate()

	if pause == nil || pause.ID != 1 {
		t.Fatalf("expected first pause id 1, got %+v", pause)
	}
	if pause.Reason != "Break on start" {
		t.Errorf("expected initial break reason, got %q", pause.Reason)
	}

	current, ok := sess.CurrentPause()
	if !ok || current.ID != pause.ID {
		t.Errorf("CurrentPause() did not return the bootstrap pause")
	}
}

func TestResumeRacePausedWins(t *testing.T) {
	target := newFakeTarget()
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	sess, _ := attachForTest(t, srv, target)
	defer sess.Terminate()

	go func() {
		time.Sleep(30 * time.Millisecond)
		srv.Emit("Debugger.paused", pausedParams("cf2", "add", 2))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sess.ResumeRace(ctx, "Debugger.resume", nil)
	if err != nil {
		t.Fatalf("ResumeRace() error = %v", err)
	}
	if result.Exited {
		t.Fatal("expected paused result, got exited")
	}
	if result.Paused.ID != 2 {
		t.Errorf("expected pause id 2 (monotonic after the bootstrap pause), got %d", result.Paused.ID)
	}
	if got, _ := FrameAt(result.Paused, 0); got.FunctionName != "add" {
		t.Errorf("expected top frame function_name=add, got %q", got.FunctionName)
	}
}

func TestResumeRaceExitWins(t *testing.T) {
	target := newFakeTarget()
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	sess, _ := attachForTest(t, srv, target)

	go func() {
		time.Sleep(30 * time.Millisecond)
		target.exit(0)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sess.ResumeRace(ctx, "Debugger.resume", nil)
	if err != nil {
		t.Fatalf("ResumeRace() error = %v", err)
	}
	if !result.Exited {
		t.Fatal("expected exited result")
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}

	// Resume-race terminates the session as part of handling the exit.
	time.Sleep(10 * time.Millisecond)
	if !sess.isTerminated() {
		t.Error("expected session to be terminated after exit wins the race")
	}
}

func TestStalePauseIsRejected(t *testing.T) {
	target := newFakeTarget()
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	sess, firstPause := attachForTest(t, srv, target)
	defer sess.Terminate()

	go func() {
		time.Sleep(30 * time.Millisecond)
		srv.Emit("Debugger.paused", pausedParams("cf2", "add", 2))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := sess.ResumeRace(ctx, "Debugger.resume", nil); err != nil {
		t.Fatalf("ResumeRace: %v", err)
	}

	if _, err := sess.ResolveLivePause(firstPause.ID); !dbgerr.Is(err, dbgerr.InvalidPause) {
		t.Errorf("expected invalid-pause for a pause id that is no longer current, got %v", err)
	}

	// The catalog still remembers it for read-only inspection.
	if _, err := sess.ResolvePause(firstPause.ID); err != nil {
		t.Errorf("expected ResolvePause to still find the historical pause, got %v", err)
	}
}

func TestPauseIDsAreMonotonicAndUnique(t *testing.T) {
	target := newFakeTarget()
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	sess, bootstrap := attachForTest(t, srv, target)
	defer sess.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := map[int]bool{bootstrap.ID: true}
	last := bootstrap.ID
	for i := 0; i < 3; i++ {
		go func(line int) {
			time.Sleep(20 * time.Millisecond)
			srv.Emit("Debugger.paused", pausedParams("cf", "fn", line))
		}(i + 1)

		result, err := sess.ResumeRace(ctx, "Debugger.resume", nil)
		if err != nil {
			t.Fatalf("ResumeRace: %v", err)
		}
		if seen[result.Paused.ID] {
			t.Fatalf("pause id %d reused", result.Paused.ID)
		}
		if result.Paused.ID <= last {
			t.Fatalf("pause id %d not monotonically greater than %d", result.Paused.ID, last)
		}
		seen[result.Paused.ID] = true
		last = result.Paused.ID
	}
}
