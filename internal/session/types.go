// Package session implements the debug session engine: the state
// machine that owns the target process, the CDP client, and every
// catalog a tool call can read (scripts, pauses, console, breakpoints).
package session

import (
	"github.com/daabr/chrome-vision/pkg/cdp/debugger"
	"github.com/daabr/chrome-vision/pkg/cdp/runtime"
)

// ScriptEntry is one row of the script catalog, appended on
// Debugger.scriptParsed.
type ScriptEntry struct {
	ScriptID string
	URL      string
}

// ConsoleEntry is one buffered console message, appended on
// Runtime.consoleAPICalled.
type ConsoleEntry struct {
	Level string
	Text  string
}

// ScopeDescriptor mirrors a debugger.Scope with its kind tag and
// backing object handle.
type ScopeDescriptor struct {
	Kind   string
	Name   string
	Object *runtime.RemoteObject
}

// CallFrame is one entry of a pause snapshot's call stack. FrameID is
// opaque and owned by the target; it is valid only for the lifetime of
// the pause snapshot it belongs to.
type CallFrame struct {
	FrameID      string
	FunctionName string
	Location     debugger.Location
	URL          string
	ScopeChain   []ScopeDescriptor
	This         *runtime.RemoteObject
}

// PauseSnapshot is the call-stack + scopes the target reported when it
// last halted. Generation equals ID; Session.ResolveLivePause detects
// stale handles from an earlier pause by comparing the pause id against
// the session's current pause id.
type PauseSnapshot struct {
	ID         int
	Generation int
	Reason     string
	Frames     []CallFrame
}

// TopFrame returns the snapshot's innermost frame, or the zero value
// and false if the snapshot has no frames.
func (p *PauseSnapshot) TopFrame() (CallFrame, bool) {
	if p == nil || len(p.Frames) == 0 {
		return CallFrame{}, false
	}
	return p.Frames[0], true
}

// Breakpoint is a target-assigned breakpoint id plus the locations it
// resolved to on creation.
type Breakpoint struct {
	ID        string
	Locations []debugger.Location
}

// rawPausedEvent is the wire shape of Debugger.paused.
type rawPausedEvent struct {
	CallFrames     []debugger.CallFrame `json:"callFrames"`
	Reason         string               `json:"reason"`
	HitBreakpoints []string             `json:"hitBreakpoints,omitempty"`
}

// rawScriptParsedEvent is the wire shape of Debugger.scriptParsed.
type rawScriptParsedEvent struct {
	ScriptID string `json:"scriptId"`
	URL      string `json:"url"`
}
