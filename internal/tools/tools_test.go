package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/nodedbg/internal/launcher"
	"github.com/tmc/nodedbg/internal/session"
	"github.com/tmc/nodedbg/internal/testutil"
)

// fakeTarget is a session.TargetHandle double that never exits until
// the test closes it.
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

func pausedParams(frameID, functionName string, line int) map[string]interface{} {
	return map[string]interface{}{
		"reason": "other",
		"callFrames": []map[string]interface{}{
			{
				"callFrameId":  frameID,
				"functionName": functionName,
				"location":     map[string]interface{}{"scriptId": "1", "lineNumber": line, "columnNumber": 0},
				"url":          "file:///sample.js",
				"scopeChain": []map[string]interface{}{
					{"type": "local", "name": "", "object": map[string]interface{}{"type": "object", "objectId": "scope-1"}},
				},
				"this": map[string]interface{}{"type": "undefined"},
			},
		},
	}
}

// startForTest wires a Dispatcher to a fakecdp server through a
// fakeTarget double and drives `start` through its real code path.
func startForTest(t *testing.T, handler testutil.CommandHandler) (*Dispatcher, *testutil.FakeCDPServer) {
	t.Helper()

	srv := testutil.NewFakeCDPServer(t, handler)
	target := newFakeTarget()

	restore := session.SetLaunchFnForTest(func(ctx context.Context, scriptPath string, opts launcher.Options) (session.TargetHandle, string, error) {
		return target, srv.WebSocketURL(), nil
	})
	t.Cleanup(restore)

	go func() {
		time.Sleep(20 * time.Millisecond)
		srv.Emit("Debugger.paused", pausedParams("cf1", "main", 0))
	}()

	d := New()
	resp := d.Start(context.Background(), StartParams{ScriptPath: "sample.js"})
	if resp.IsError {
		t.Fatalf("Start() returned error response: %s", resp.Content[0].Text)
	}
	return d, srv
}

func TestStartAndSetBreakpoint(t *testing.T) {
	d, srv := startForTest(t, func(method string, params json.RawMessage) (interface{}, error) {
		if method == "Debugger.setBreakpointByURL" {
			return map[string]interface{}{
				"breakpointId": "bp-1",
				"locations":    []map[string]interface{}{{"scriptId": "1", "lineNumber": 4, "columnNumber": 0}},
			}, nil
		}
		return struct{}{}, nil
	})
	_ = srv

	resp := d.SetBreakpoint(context.Background(), SetBreakpointParams{FilePath: "/app/sample.js", Line: 5})
	if resp.IsError {
		t.Fatalf("SetBreakpoint() error response: %s", resp.Content[0].Text)
	}

	var payload breakpointPayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.BreakpointID != "bp-1" {
		t.Errorf("breakpoint_id = %q, want bp-1", payload.BreakpointID)
	}
	if len(payload.Locations) != 1 || payload.Locations[0].Line != 5 {
		t.Errorf("unexpected locations: %+v", payload.Locations)
	}
}

func TestResumeExecutionRacesToNextPause(t *testing.T) {
	d, srv := startForTest(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		srv.Emit("Debugger.paused", pausedParams("cf2", "add", 2))
	}()

	resp := d.ResumeExecution(context.Background(), ExecParams{IncludeStack: true})
	if resp.IsError {
		t.Fatalf("ResumeExecution() error response: %s", resp.Content[0].Text)
	}

	var payload execResultPayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.PauseID != 2 {
		t.Errorf("pause_id = %d, want 2", payload.PauseID)
	}
	if !strings.Contains(payload.Status, "Paused at") {
		t.Errorf("status = %q, expected a Paused-at message", payload.Status)
	}
	if len(payload.Stack) != 1 || payload.Stack[0].FunctionName != "add" {
		t.Errorf("unexpected stack: %+v", payload.Stack)
	}
}

func TestResumeExecutionOnTargetExit(t *testing.T) {
	srv := testutil.NewFakeCDPServer(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})
	target := newFakeTarget()
	restore := session.SetLaunchFnForTest(func(ctx context.Context, scriptPath string, opts launcher.Options) (session.TargetHandle, string, error) {
		return target, srv.WebSocketURL(), nil
	})
	t.Cleanup(restore)

	go func() {
		time.Sleep(20 * time.Millisecond)
		srv.Emit("Debugger.paused", pausedParams("cf1", "main", 0))
	}()

	d := New()
	if resp := d.Start(context.Background(), StartParams{ScriptPath: "sample.js"}); resp.IsError {
		t.Fatalf("Start() error: %s", resp.Content[0].Text)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		target.mu.Lock()
		target.exitCode = 7
		target.mu.Unlock()
		close(target.exited)
	}()

	resp := d.ResumeExecution(context.Background(), ExecParams{})
	if resp.IsError {
		t.Fatalf("ResumeExecution() error response: %s", resp.Content[0].Text)
	}
	var payload execResultPayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ExitCode == nil || *payload.ExitCode != 7 {
		t.Errorf("exit_code = %v, want 7", payload.ExitCode)
	}
	if !strings.Contains(payload.Status, "completed") {
		t.Errorf("status = %q, expected a completed message", payload.Status)
	}
}

func TestEvaluateExpressionReportsException(t *testing.T) {
	d, _ := startForTest(t, func(method string, params json.RawMessage) (interface{}, error) {
		if method == "Debugger.evaluateOnCallFrame" {
			return map[string]interface{}{
				"result": map[string]interface{}{"type": "undefined"},
				"exceptionDetails": map[string]interface{}{
					"exceptionId":  1,
					"text":         "Uncaught ReferenceError: x is not defined",
					"lineNumber":   0,
					"columnNumber": 0,
				},
			}, nil
		}
		return struct{}{}, nil
	})

	resp := d.EvaluateExpression(context.Background(), EvaluateExpressionParams{Expr: "x"})
	if !resp.IsError {
		t.Fatal("expected evaluate_expression to report an error response for a thrown exception")
	}
	var payload errorPayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Error != "evaluation-exception" {
		t.Errorf("error tag = %q, want evaluation-exception", payload.Error)
	}
}

func TestAddLogpointConditionTemplatesExpressionsAndStaysFalse(t *testing.T) {
	cond := logpointCondition("x = {x}, escaped `tick`")
	if !strings.HasSuffix(cond, "), false)") {
		t.Errorf("logpoint condition must always evaluate false, got %q", cond)
	}
	if !strings.Contains(cond, "${x}") {
		t.Errorf("expected {x} to be interpolated as ${x}, got %q", cond)
	}
	if !strings.Contains(cond, "\\`tick\\`") {
		t.Errorf("expected literal backticks to be escaped, got %q", cond)
	}
}

func TestListScriptsAndGetScriptSource(t *testing.T) {
	d, srv := startForTest(t, func(method string, params json.RawMessage) (interface{}, error) {
		if method == "Debugger.getScriptSource" {
			return map[string]interface{}{"scriptSource": "console.log(1)"}, nil
		}
		return struct{}{}, nil
	})

	srv.Emit("Debugger.scriptParsed", map[string]interface{}{"scriptId": "42", "url": "file:///sample.js"})
	time.Sleep(20 * time.Millisecond)

	resp := d.ListScripts(context.Background())
	var list listScriptsPayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Scripts) != 1 || list.Scripts[0].ScriptID != "42" {
		t.Fatalf("unexpected script catalog: %+v", list.Scripts)
	}

	resp = d.GetScriptSource(context.Background(), GetScriptSourceParams{URL: "file:///sample.js"})
	var src scriptSourcePayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &src); err != nil {
		t.Fatalf("decode source: %v", err)
	}
	if src.Source != "console.log(1)" {
		t.Errorf("source = %q", src.Source)
	}
}

func TestSetBreakpointConditionRequiresOneLocator(t *testing.T) {
	d, _ := startForTest(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	resp := d.SetBreakpointCondition(context.Background(), SetBreakpointConditionParams{Line: 3, Condition: "x > 1"})
	if !resp.IsError {
		t.Fatal("expected missing-locator error when neither file_path nor url_regex is given")
	}
	var payload errorPayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Error != "missing-locator" {
		t.Errorf("error tag = %q, want missing-locator", payload.Error)
	}
}

func TestToolsReturnNoSessionAfterStop(t *testing.T) {
	d, _ := startForTest(t, func(method string, params json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})

	if resp := d.Stop(context.Background()); resp.IsError {
		t.Fatalf("Stop() error response: %s", resp.Content[0].Text)
	}

	for name, resp := range map[string]Response{
		"get_pause_info":   d.GetPauseInfo(context.Background(), GetPauseInfoParams{}),
		"resume_execution": d.ResumeExecution(context.Background(), ExecParams{}),
		"list_scripts":     d.ListScripts(context.Background()),
	} {
		if !resp.IsError {
			t.Errorf("%s: expected an error response after stop", name)
			continue
		}
		var payload errorPayload
		if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
			t.Fatalf("%s: decode payload: %v", name, err)
		}
		if payload.Error != "no-session" {
			t.Errorf("%s: error tag = %q, want no-session", name, payload.Error)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	d := New()
	resp := d.Stop(context.Background())
	var payload stopPayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "no-session" {
		t.Errorf("status = %q, want no-session", payload.Status)
	}
}
