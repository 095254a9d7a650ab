//go:build integration

package tools

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

const sampleScript = `function add(a, b) {
  const sum = a + b;
  return sum;
}
const result = add(2, 3);
console.log(result);
`

func decodePayload(t *testing.T, resp Response, v interface{}) {
	t.Helper()
	if resp.IsError {
		t.Fatalf("unexpected error response: %s", resp.Content[0].Text)
	}
	if err := json.Unmarshal([]byte(resp.Content[0].Text), v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}

// TestDebugSessionAgainstRealRuntime drives a full
// breakpoint/evaluate/resume cycle against an actual node process.
func TestDebugSessionAgainstRealRuntime(t *testing.T) {
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node not found on PATH")
	}

	script := filepath.Join(t.TempDir(), "sample.js")
	if err := os.WriteFile(script, []byte(sampleScript), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := New()
	defer d.Stop(ctx)

	var started startPayload
	decodePayload(t, d.Start(ctx, StartParams{ScriptPath: script}), &started)
	if started.PauseID != 1 {
		t.Fatalf("initial pause id = %d, want 1", started.PauseID)
	}

	var bp breakpointPayload
	decodePayload(t, d.SetBreakpoint(ctx, SetBreakpointParams{FilePath: script, Line: 3}), &bp)
	if bp.BreakpointID == "" {
		t.Fatal("expected a target-assigned breakpoint id")
	}

	var paused execResultPayload
	decodePayload(t, d.ResumeExecution(ctx, ExecParams{}), &paused)
	if paused.Frame == nil || paused.Frame.Line != 3 {
		t.Fatalf("expected pause at line 3, got %+v", paused.Frame)
	}
	if paused.Frame.FunctionName != "add" {
		t.Errorf("function_name = %q, want add", paused.Frame.FunctionName)
	}

	var eval evaluatePayload
	decodePayload(t, d.EvaluateExpression(ctx, EvaluateExpressionParams{Expr: "sum"}), &eval)
	if eval.Value != "5" {
		t.Errorf("sum = %q, want 5", eval.Value)
	}

	var done execResultPayload
	decodePayload(t, d.ResumeExecution(ctx, ExecParams{IncludeConsole: true}), &done)
	if done.ExitCode == nil || *done.ExitCode != 0 {
		t.Fatalf("expected clean target exit, got %+v", done)
	}
}
