package tools

import (
	"context"
	"encoding/json"

	"github.com/daabr/chrome-vision/pkg/cdp/debugger"
	"github.com/daabr/chrome-vision/pkg/cdp/runtime"
	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/session"
)

// pauseInfoPayload is the JSON body of `get_pause_info`.
type pauseInfoPayload struct {
	Reason       string       `json:"reason"`
	PauseID      int          `json:"pause_id"`
	Location     locationJSON `json:"location"`
	FunctionName string       `json:"function_name"`
	ScopeTypes   []string     `json:"scope_types"`
}

// GetPauseInfoParams are the parameters of `get_pause_info`.
type GetPauseInfoParams struct {
	PauseID int `json:"pause_id,omitempty"`
}

// GetPauseInfo is the `get_pause_info` tool.
func (t *Dispatcher) GetPauseInfo(ctx context.Context, p GetPauseInfoParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	snap, err := sess.ResolvePause(p.PauseID)
	if err != nil {
		return errorResponse(err)
	}
	top, hasFrame := snap.TopFrame()
	if !hasFrame {
		return errorResponse(dbgerr.New(dbgerr.InvalidFrame, "pause snapshot has no frames"))
	}
	scopeTypes := make([]string, 0, len(top.ScopeChain))
	for _, sc := range top.ScopeChain {
		scopeTypes = append(scopeTypes, sc.Kind)
	}
	return ok(pauseInfoPayload{
		Reason:  snap.Reason,
		PauseID: snap.ID,
		Location: locationJSON{
			ScriptID: top.Location.ScriptID,
			Line:     int(top.Location.LineNumber) + 1,
			Column:   int(top.Location.ColumnNumber) + 1,
		},
		FunctionName: top.FunctionName,
		ScopeTypes:   scopeTypes,
	})
}

// ListCallStackParams are the parameters of `list_call_stack`.
type ListCallStackParams struct {
	Depth       int  `json:"depth,omitempty"`
	PauseID     int  `json:"pause_id,omitempty"`
	IncludeThis bool `json:"include_this,omitempty"`
}

type callStackFrameJSON struct {
	FrameSummary
	This *PropertySummary `json:"this,omitempty"`
}

type callStackPayload struct {
	Frames []callStackFrameJSON `json:"frames"`
}

// ListCallStack is the `list_call_stack` tool.
func (t *Dispatcher) ListCallStack(ctx context.Context, p ListCallStackParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	snap, err := sess.ResolvePause(p.PauseID)
	if err != nil {
		return errorResponse(err)
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 10
	}
	if depth > len(snap.Frames) {
		depth = len(snap.Frames)
	}
	frames := make([]callStackFrameJSON, 0, depth)
	for i := 0; i < depth; i++ {
		f := snap.Frames[i]
		entry := callStackFrameJSON{FrameSummary: summarizeFrame(f)}
		if p.IncludeThis {
			entry.This = receiverPreview(f)
		}
		frames = append(frames, entry)
	}
	return ok(callStackPayload{Frames: frames})
}

// InspectScopesParams are the parameters of `inspect_scopes`.
type InspectScopesParams struct {
	PauseID            int   `json:"pause_id,omitempty"`
	FrameIndex         int   `json:"frame_index,omitempty"`
	MaxProps           int   `json:"max_props,omitempty"`
	IncludeThisPreview *bool `json:"include_this_preview,omitempty"`
}

func (p InspectScopesParams) includeThisPreview() bool {
	if p.IncludeThisPreview == nil {
		return true
	}
	return *p.IncludeThisPreview
}

type inspectScopesPayload struct {
	Scopes []ScopeSummary   `json:"scopes"`
	This   *PropertySummary `json:"this,omitempty"`
}

// InspectScopes is the `inspect_scopes` tool.
func (t *Dispatcher) InspectScopes(ctx context.Context, p InspectScopesParams) Response {
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
	maxProps := p.MaxProps
	if maxProps <= 0 {
		maxProps = 15
	}
	scopes, err := summarizeScopes(ctx, sess.Client(), frame, maxProps)
	if err != nil {
		return errorResponse(wrapIfNeeded(err))
	}
	payload := inspectScopesPayload{Scopes: scopes}
	if p.includeThisPreview() {
		payload.This = receiverPreview(frame)
	}
	return ok(payload)
}

// EvaluateExpressionParams are the parameters of
// `evaluate_expression`.
type EvaluateExpressionParams struct {
	Expr          string `json:"expr"`
	PauseID       int    `json:"pause_id,omitempty"`
	FrameIndex    int    `json:"frame_index,omitempty"`
	ReturnByValue *bool  `json:"return_by_value,omitempty"`
}

func (p EvaluateExpressionParams) returnByValue() bool {
	if p.ReturnByValue == nil {
		return true
	}
	return *p.ReturnByValue
}

type evaluatePayload struct {
	Value    string             `json:"value"`
	Type     string             `json:"type"`
	ObjectID string             `json:"object_id,omitempty"`
	Console  []ConsoleEntryJSON `json:"console,omitempty"`
}

// EvaluateExpression is the `evaluate_expression` tool.
func (t *Dispatcher) EvaluateExpression(ctx context.Context, p EvaluateExpressionParams) Response {
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

	cmd := debugger.NewEvaluateOnCallFrame(debugger.CallFrameID(frame.FrameID), p.Expr).
		SetIncludeCommandLineAPI(true).
		SetReturnByValue(p.returnByValue()).
		SetGeneratePreview(true)

	raw, err := sess.Client().Send(ctx, "Debugger.evaluateOnCallFrame", cmd)
	if err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "Debugger.evaluateOnCallFrame"))
	}
	var res debugger.EvaluateOnCallFrameResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "decode Debugger.evaluateOnCallFrame result"))
	}

	console := summarizeConsole(sess.DrainConsole())

	if res.ExceptionDetails != nil {
		msg := res.ExceptionDetails.Text
		if exc := res.ExceptionDetails.Exception; exc != nil && exc.Description != "" {
			msg += ": " + exc.Description
		}
		return errorResponse(dbgerr.New(dbgerr.EvaluationException, msg))
	}

	return ok(evaluatePayload{
		Value:    session.FormatRemoteObjectValue(res.Result),
		Type:     res.Result.Type,
		ObjectID: res.Result.ObjectID,
		Console:  console,
	})
}

// GetObjectPropertiesParams are the parameters of
// `get_object_properties`.
type GetObjectPropertiesParams struct {
	ObjectID string `json:"object_id"`
	MaxProps int    `json:"max_props,omitempty"`
}

type objectPropertiesPayload struct {
	Properties []PropertySummary `json:"properties"`
	Truncated  bool              `json:"truncated,omitempty"`
}

// GetObjectProperties is the `get_object_properties` tool.
func (t *Dispatcher) GetObjectProperties(ctx context.Context, p GetObjectPropertiesParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	maxProps := p.MaxProps
	if maxProps <= 0 {
		maxProps = 50
	}
	props, truncated, err := fetchProperties(ctx, sess.Client(), p.ObjectID, maxProps, false)
	if err != nil {
		return errorResponse(wrapIfNeeded(err))
	}
	return ok(objectPropertiesPayload{Properties: props, Truncated: truncated})
}

type scriptEntryJSON struct {
	ScriptID string `json:"script_id"`
	URL      string `json:"url"`
}

type listScriptsPayload struct {
	Scripts []scriptEntryJSON `json:"scripts"`
}

// ListScripts is the `list_scripts` tool.
func (t *Dispatcher) ListScripts(ctx context.Context) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	entries := sess.Scripts()
	out := make([]scriptEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, scriptEntryJSON{ScriptID: e.ScriptID, URL: e.URL})
	}
	return ok(listScriptsPayload{Scripts: out})
}

// GetScriptSourceParams are the parameters of `get_script_source`.
type GetScriptSourceParams struct {
	ScriptID string `json:"script_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

type scriptSourcePayload struct {
	Source string `json:"source"`
}

// GetScriptSource is the `get_script_source` tool.
func (t *Dispatcher) GetScriptSource(ctx context.Context, p GetScriptSourceParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	scriptID := p.ScriptID
	if scriptID == "" {
		id, ok := sess.ScriptIDForURL(p.URL)
		if !ok {
			return errorResponse(dbgerr.Newf(dbgerr.UnknownScript, "no known script for %s", p.URL))
		}
		scriptID = id
	}

	raw, err := sess.Client().Send(ctx, "Debugger.getScriptSource", debugger.NewGetScriptSource(runtime.ScriptID(scriptID)))
	if err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "Debugger.getScriptSource"))
	}
	var res debugger.GetScriptSourceResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "decode Debugger.getScriptSource result"))
	}
	return ok(scriptSourcePayload{Source: res.ScriptSource})
}

type readConsolePayload struct {
	Console []ConsoleEntryJSON `json:"console"`
}

// ReadConsole is the `read_console` tool.
func (t *Dispatcher) ReadConsole(ctx context.Context) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	return ok(readConsolePayload{Console: summarizeConsole(sess.DrainConsole())})
}
