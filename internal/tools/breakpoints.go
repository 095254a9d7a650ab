package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/daabr/chrome-vision/pkg/cdp/debugger"
	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/session"
)

// locator is the {file_path | url_regex} choice shared by
// set_breakpoint_condition and add_logpoint.
type locator struct {
	FilePath string `json:"file_path,omitempty"`
	URLRegex string `json:"url_regex,omitempty"`
}

func (l locator) apply(cmd *debugger.SetBreakpointByURL) error {
	switch {
	case l.FilePath != "" && l.URLRegex != "":
		return dbgerr.New(dbgerr.MissingLocator, "exactly one of file_path or url_regex is required, not both")
	case l.FilePath != "":
		cmd.SetURL(toFileURL(l.FilePath))
	case l.URLRegex != "":
		cmd.SetURLRegex(l.URLRegex)
	default:
		return dbgerr.New(dbgerr.MissingLocator, "exactly one of file_path or url_regex is required")
	}
	return nil
}

type breakpointPayload struct {
	BreakpointID string         `json:"breakpoint_id"`
	Locations    []locationJSON `json:"locations"`
}

type locationJSON struct {
	ScriptID string `json:"script_id"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

func toLocationJSON(locs []debugger.Location) []locationJSON {
	out := make([]locationJSON, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationJSON{ScriptID: string(l.ScriptID), Line: int(l.LineNumber) + 1, Column: int(l.ColumnNumber) + 1})
	}
	return out
}

func (t *Dispatcher) setBreakpointByURL(ctx context.Context, sess *session.Session, cmd *debugger.SetBreakpointByURL) Response {
	raw, err := sess.Client().Send(ctx, "Debugger.setBreakpointByURL", cmd)
	if err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "Debugger.setBreakpointByURL"))
	}
	var res debugger.SetBreakpointByURLResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "decode Debugger.setBreakpointByURL result"))
	}
	sess.PutBreakpoint(session.Breakpoint{ID: string(res.BreakpointID), Locations: res.Locations})
	return ok(breakpointPayload{BreakpointID: string(res.BreakpointID), Locations: toLocationJSON(res.Locations)})
}

// SetBreakpointParams are the parameters of `set_breakpoint`. Column
// is accepted for API symmetry but advisory only: the breakpoint is
// always requested at column 0 and the target resolves the actual
// position.
type SetBreakpointParams struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Column   int    `json:"column,omitempty"`
}

// SetBreakpoint is the `set_breakpoint` tool: an unconditional
// breakpoint at a 1-based line.
func (t *Dispatcher) SetBreakpoint(ctx context.Context, p SetBreakpointParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	cmd := debugger.NewSetBreakpointByURL(int64(p.Line - 1)).SetURL(toFileURL(p.FilePath))
	return t.setBreakpointByURL(ctx, sess, cmd)
}

// SetBreakpointConditionParams are the parameters of
// `set_breakpoint_condition`.
type SetBreakpointConditionParams struct {
	locator
	Line      int    `json:"line"`
	Column    int    `json:"column,omitempty"`
	Condition string `json:"condition"`
}

// SetBreakpointCondition is the `set_breakpoint_condition` tool.
func (t *Dispatcher) SetBreakpointCondition(ctx context.Context, p SetBreakpointConditionParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	cmd := debugger.NewSetBreakpointByURL(int64(p.Line - 1)).SetCondition(p.Condition)
	if p.Column > 0 {
		cmd.SetColumnNumber(int64(p.Column - 1))
	}
	if err := p.locator.apply(cmd); err != nil {
		return errorResponse(err)
	}
	return t.setBreakpointByURL(ctx, sess, cmd)
}

// AddLogpointParams are the parameters of `add_logpoint`.
type AddLogpointParams struct {
	locator
	Line    int    `json:"line"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// AddLogpoint is the `add_logpoint` tool: a conditional breakpoint
// whose condition prints the expanded message as a side effect and
// always evaluates to false, so execution never actually pauses there.
func (t *Dispatcher) AddLogpoint(ctx context.Context, p AddLogpointParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	cmd := debugger.NewSetBreakpointByURL(int64(p.Line - 1)).SetCondition(logpointCondition(p.Message))
	if p.Column > 0 {
		cmd.SetColumnNumber(int64(p.Column - 1))
	}
	if err := p.locator.apply(cmd); err != nil {
		return errorResponse(err)
	}
	return t.setBreakpointByURL(ctx, sess, cmd)
}

// logpointCondition builds the side-effecting, always-false condition
// expression for a logpoint message template. `{expr}` segments are
// interpolated with the value of expr evaluated in scope; backticks in
// literal text are escaped so the template compiles as a single
// JavaScript template literal.
func logpointCondition(message string) string {
	var b strings.Builder
	b.WriteString("(console.log(`")

	rest := message
	for {
		start := strings.Index(rest, "{")
		if start < 0 {
			b.WriteString(escapeTemplateLiteral(rest))
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(escapeTemplateLiteral(rest))
			break
		}
		end += start

		b.WriteString(escapeTemplateLiteral(rest[:start]))
		expr := rest[start+1 : end]
		b.WriteString("${")
		b.WriteString(expr)
		b.WriteString("}")
		rest = rest[end+1:]
	}

	b.WriteString("`), false)")
	return b.String()
}

func escapeTemplateLiteral(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "`", "\\`")
	return s
}

// SetExceptionBreakpointsParams are the parameters of
// `set_exception_breakpoints`.
type SetExceptionBreakpointsParams struct {
	State string `json:"state"`
}

type statusPayload struct {
	Status string `json:"status"`
}

// SetExceptionBreakpoints is the `set_exception_breakpoints` tool,
// forwarded directly to Debugger.setPauseOnExceptions.
func (t *Dispatcher) SetExceptionBreakpoints(ctx context.Context, p SetExceptionBreakpointsParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	if _, err := sess.Client().Send(ctx, "Debugger.setPauseOnExceptions", debugger.NewSetPauseOnExceptions(p.State)); err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "Debugger.setPauseOnExceptions"))
	}
	return ok(statusPayload{Status: fmt.Sprintf("exception breakpoints set to %s", p.State)})
}

// BlackboxScriptsParams are the parameters of `blackbox_scripts`.
type BlackboxScriptsParams struct {
	Patterns []string `json:"patterns"`
}

// BlackboxScripts is the `blackbox_scripts` tool, forwarded directly to
// Debugger.setBlackboxPatterns.
func (t *Dispatcher) BlackboxScripts(ctx context.Context, p BlackboxScriptsParams) Response {
	sess, err := t.currentSession()
	if err != nil {
		return errorResponse(err)
	}
	if _, err := sess.Client().Send(ctx, "Debugger.setBlackboxPatterns", debugger.NewSetBlackboxPatterns(p.Patterns)); err != nil {
		return errorResponse(dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "Debugger.setBlackboxPatterns"))
	}
	return ok(statusPayload{Status: strconv.Itoa(len(p.Patterns)) + " blackbox patterns set"})
}
