package tools

import (
	"context"
	"encoding/json"

	"github.com/daabr/chrome-vision/pkg/cdp/runtime"
	"github.com/tmc/nodedbg/internal/cdp"
	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/session"
)

// globalScopeMaxProps is the hard cap on properties listed for the
// global scope regardless of the caller's requested max_props.
const globalScopeMaxProps = 5

// FrameSummary is the 1-based, JSON-facing rendering of a call frame.
type FrameSummary struct {
	FunctionName string `json:"function_name"`
	URL          string `json:"url"`
	Line         int    `json:"line"`
	Column       int    `json:"column"`
}

func summarizeFrame(f session.CallFrame) FrameSummary {
	return FrameSummary{
		FunctionName: f.FunctionName,
		URL:          f.URL,
		Line:         int(f.Location.LineNumber) + 1,
		Column:       int(f.Location.ColumnNumber) + 1,
	}
}

func summarizeStack(snap *session.PauseSnapshot, depth int) []FrameSummary {
	if depth <= 0 || depth > len(snap.Frames) {
		depth = len(snap.Frames)
	}
	out := make([]FrameSummary, 0, depth)
	for i := 0; i < depth; i++ {
		out = append(out, summarizeFrame(snap.Frames[i]))
	}
	return out
}

// PropertySummary is the JSON-facing rendering of one object property
// or scope variable.
type PropertySummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	ObjectID string `json:"object_id,omitempty"`
}

func summarizeProperty(name string, v *runtime.RemoteObject) PropertySummary {
	if v == nil {
		return PropertySummary{Name: name, Type: "undefined", Value: "undefined"}
	}
	return PropertySummary{Name: name, Type: v.Type, Value: session.FormatRemoteObjectValue(*v), ObjectID: v.ObjectID}
}

// ScopeSummary is one entry of inspect_scopes's scope list.
type ScopeSummary struct {
	Kind       string            `json:"kind"`
	Name       string            `json:"name,omitempty"`
	Properties []PropertySummary `json:"properties"`
	Truncated  bool              `json:"truncated,omitempty"`
}

// fetchProperties enumerates own properties of a remote object,
// capping the list at max (the global scope is capped at
// globalScopeMaxProps regardless of the caller's request).
func fetchProperties(ctx context.Context, client *cdp.Client, objectID string, max int, isGlobal bool) ([]PropertySummary, bool, error) {
	limitCap := max
	if isGlobal && (limitCap <= 0 || limitCap > globalScopeMaxProps) {
		limitCap = globalScopeMaxProps
	}

	params := runtime.NewGetProperties(runtime.RemoteObjectID(objectID)).SetOwnProperties(true).SetGeneratePreview(true)
	raw, err := client.Send(ctx, "Runtime.getProperties", params)
	if err != nil {
		return nil, false, dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "Runtime.getProperties")
	}

	var res runtime.GetPropertiesResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "decode Runtime.getProperties result")
	}

	truncated := limitCap > 0 && len(res.Result) > limitCap
	limit := len(res.Result)
	if limitCap > 0 && limit > limitCap {
		limit = limitCap
	}

	out := make([]PropertySummary, 0, limit)
	for _, p := range res.Result[:limit] {
		out = append(out, summarizeProperty(p.Name, p.Value))
	}
	return out, truncated, nil
}

func summarizeScopes(ctx context.Context, client *cdp.Client, frame session.CallFrame, maxProps int) ([]ScopeSummary, error) {
	out := make([]ScopeSummary, 0, len(frame.ScopeChain))
	for _, sc := range frame.ScopeChain {
		if sc.Object == nil || sc.Object.ObjectID == "" {
			out = append(out, ScopeSummary{Kind: sc.Kind, Name: sc.Name})
			continue
		}
		props, truncated, err := fetchProperties(ctx, client, sc.Object.ObjectID, maxProps, sc.Kind == "global")
		if err != nil {
			return nil, err
		}
		out = append(out, ScopeSummary{Kind: sc.Kind, Name: sc.Name, Properties: props, Truncated: truncated})
	}
	return out, nil
}

// receiverPreview summarizes a frame's `this` value for
// include_this_preview / include_this.
func receiverPreview(frame session.CallFrame) *PropertySummary {
	if frame.This == nil {
		return nil
	}
	p := summarizeProperty("this", frame.This)
	return &p
}

// ConsoleEntryJSON is the JSON-facing rendering of a buffered console
// message.
type ConsoleEntryJSON struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func summarizeConsole(entries []session.ConsoleEntry) []ConsoleEntryJSON {
	out := make([]ConsoleEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, ConsoleEntryJSON{Level: e.Level, Text: e.Text})
	}
	return out
}

// ContextBundle carries the optional include_stack / include_scopes /
// include_console payload shared by execution-control responses.
type ContextBundle struct {
	Stack   []FrameSummary     `json:"stack,omitempty"`
	Scopes  []ScopeSummary     `json:"scopes,omitempty"`
	Console []ConsoleEntryJSON `json:"console,omitempty"`
}

// ContextFlags selects which parts of the bundle to populate.
type ContextFlags struct {
	IncludeStack   bool
	IncludeScopes  bool
	IncludeConsole bool
}

func (t *Dispatcher) buildContext(ctx context.Context, sess *session.Session, snap *session.PauseSnapshot, flags ContextFlags) (ContextBundle, error) {
	var bundle ContextBundle
	if flags.IncludeStack {
		bundle.Stack = summarizeStack(snap, 0)
	}
	if flags.IncludeScopes {
		if top, hasFrame := snap.TopFrame(); hasFrame {
			scopes, err := summarizeScopes(ctx, sess.Client(), top, 15)
			if err != nil {
				return bundle, err
			}
			bundle.Scopes = scopes
		}
	}
	if flags.IncludeConsole {
		bundle.Console = summarizeConsole(sess.DrainConsole())
	}
	return bundle, nil
}
