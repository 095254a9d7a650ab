package tools

import (
	"context"
	"fmt"

	"github.com/daabr/chrome-vision/pkg/cdp/debugger"
	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/session"
)

// ExecParams is the optional context bundle shared by every
// execution-control tool.
type ExecParams struct {
	IncludeStack   bool `json:"include_stack,omitempty"`
	IncludeScopes  bool `json:"include_scopes,omitempty"`
	IncludeConsole bool `json:"include_console,omitempty"`
}

func (p ExecParams) flags() ContextFlags {
	return ContextFlags{IncludeStack: p.IncludeStack, IncludeScopes: p.IncludeScopes, IncludeConsole: p.IncludeConsole}
}

// execResultPayload unifies the two shapes an execution-control tool
// can return: a new pause, or target completion.
type execResultPayload struct {
	Status   string             `json:"status"`
	PauseID  int                `json:"pause_id,omitempty"`
	Frame    *FrameSummary      `json:"frame,omitempty"`
	ExitCode *int               `json:"exit_code,omitempty"`
	Stack    []FrameSummary     `json:"stack,omitempty"`
	Scopes   []ScopeSummary     `json:"scopes,omitempty"`
	Console  []ConsoleEntryJSON `json:"console,omitempty"`
}

// ResumeExecution is the `resume_execution` tool.
func (t *Dispatcher) ResumeExecution(ctx context.Context, p ExecParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	return t.race(ctx, sess, "Debugger.resume", debugger.NewResume(), p.flags())
}

// StepOver is the `step_over` tool.
func (t *Dispatcher) StepOver(ctx context.Context, p ExecParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	return t.race(ctx, sess, "Debugger.stepOver", debugger.NewStepOver(), p.flags())
}

// StepInto is the `step_into` tool.
func (t *Dispatcher) StepInto(ctx context.Context, p ExecParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	return t.race(ctx, sess, "Debugger.stepInto", debugger.NewStepInto(), p.flags())
}

// StepOut is the `step_out` tool.
func (t *Dispatcher) StepOut(ctx context.Context, p ExecParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	return t.race(ctx, sess, "Debugger.stepOut", debugger.NewStepOut(), p.flags())
}

// ContinueToLocationParams are the parameters of `continue_to_location`.
type ContinueToLocationParams struct {
	ExecParams
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
}

// ContinueToLocation is the `continue_to_location` tool: it translates
// a 1-based (file path, line, column) into the target's 0-based
// (script id, line, column) before racing.
func (t *Dispatcher) ContinueToLocation(ctx context.Context, p ContinueToLocationParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}

	url := toFileURL(p.FilePath)
	scriptID, ok := sess.ScriptIDForURL(url)
	if !ok {
		return errorResponse(dbgerr.Newf(dbgerr.UnknownScript, "no known script for %s", p.FilePath))
	}

	column := 0
	if p.Column > 0 {
		column = p.Column - 1
	}
	loc := debugger.Location{ScriptID: scriptID, LineNumber: int64(p.Line - 1), ColumnNumber: int64(column)}

	return t.race(ctx, sess, "Debugger.continueToLocation", debugger.NewContinueToLocation(loc), p.flags())
}

// RestartFrameParams are the parameters of `restart_frame`.
type RestartFrameParams struct {
	ExecParams
	FrameIndex int `json:"frame_index"`
	PauseID    int `json:"pause_id,omitempty"`
}

// RestartFrame is the `restart_frame` tool. The frame token is looked
// up in the named pause snapshot (default current); since restarting a
// frame requires a live handle, a stale pause id fails with
// invalid-pause rather than forwarding a dead frame id to the target.
func (t *Dispatcher) RestartFrame(ctx context.Context, p RestartFrameParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}

	snap, err := sess.ResolveLivePause(p.PauseID)
	if err != nil {
		return errorResponse(err)
	}
	frame, err := session.FrameAt(snap, p.FrameIndex)
	if err != nil {
		return errorResponse(err)
	}

	return t.race(ctx, sess, "Debugger.restartFrame", debugger.NewRestartFrame(debugger.CallFrameID(frame.FrameID)), p.flags())
}

// race drives the resume-race primitive and renders its outcome
// (new pause or target completion) into a Response.
func (t *Dispatcher) race(ctx context.Context, sess *session.Session, method string, params interface{}, flags ContextFlags) Response {
	result, err := sess.ResumeRace(ctx, method, params)
	if err != nil {
		return errorResponse(wrapIfNeeded(err))
	}

	if result.Exited {
		payload := execResultPayload{Status: fmt.Sprintf("completed (exit code %d)", result.ExitCode), ExitCode: &result.ExitCode}
		if flags.IncludeConsole {
			payload.Console = summarizeConsole(sess.DrainConsole())
		}
		return ok(payload)
	}

	snap := result.Paused
	top, _ := snap.TopFrame()
	frame := summarizeFrame(top)

	bundle, err := t.buildContext(ctx, sess, snap, flags)
	if err != nil {
		return errorResponse(wrapIfNeeded(err))
	}

	payload := execResultPayload{
		Status:  fmt.Sprintf("Paused at %s:%d (reason: %s)", frame.URL, frame.Line, snap.Reason),
		PauseID: snap.ID,
		Frame:   &frame,
		Stack:   bundle.Stack,
		Scopes:  bundle.Scopes,
		Console: bundle.Console,
	}
	return ok(payload)
}
