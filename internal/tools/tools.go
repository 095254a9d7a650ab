package tools

import (
	"context"

	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/session"
)

// Dispatcher implements the tool surface against a single
// session.Manager. It holds no state of its own beyond the manager:
// all session state lives in internal/session.
type Dispatcher struct {
	mgr *session.Manager
}

// New constructs a Dispatcher around a fresh Manager.
func New(opts ...session.Option) *Dispatcher {
	return &Dispatcher{mgr: session.NewManager(opts...)}
}

// startPayload is the JSON body of a successful `start`.
type startPayload struct {
	Status  string       `json:"status"`
	PauseID int          `json:"pause_id"`
	Frame   FrameSummary `json:"frame"`
}

// StartParams are the parameters of the `start` tool.
type StartParams struct {
	ScriptPath string `json:"script_path"`
}

// Start launches the target under a fresh session and waits for its
// initial break-on-entry pause.
func (t *Dispatcher) Start(ctx context.Context, p StartParams) Response {
	sess, pause, err := t.mgr.Start(ctx, p.ScriptPath)
	if err != nil {
		return errorResponse(err)
	}

	top, _ := pause.TopFrame()
	return ok(startPayload{
		Status:  "paused",
		PauseID: pause.ID,
		Frame:   summarizeFrame(top),
	})
}

// stopPayload is the JSON body of `stop`.
type stopPayload struct {
	Status string `json:"status"`
}

// Stop tears down the active session, if any. Idempotent: a second
// call with no active session still succeeds.
func (t *Dispatcher) Stop(ctx context.Context) Response {
	wasActive := t.mgr.Stop()
	if !wasActive {
		return ok(stopPayload{Status: "no-session"})
	}
	return ok(stopPayload{Status: "stopped"})
}

// currentSession resolves the active session or returns a no-session
// error response, used by every tool that requires one.
func (t *Dispatcher) currentSession() (*session.Session, error) {
	sess, err := t.mgr.Current()
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func wrapIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*dbgerr.DebugError); ok {
		return err
	}
	return dbgerr.Wrap(err, dbgerr.Internal, "unexpected error")
}
