package session

import (
	"github.com/tmc/nodedbg/internal/dbgerr"
)

// CurrentPause returns the most recently recorded pause snapshot, if
// the session currently has one.
func (s *Session) CurrentPause() (*PauseSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentPauseID == 0 {
		return nil, false
	}
	snap, ok := s.pauses[s.currentPauseID]
	return snap, ok
}

// ResolvePause looks up a pause by id for read-only, catalog-only
// inspection (get_pause_info, list_call_stack): any pause ever
// recorded in this session remains inspectable by id. id == 0 means
// "the current pause".
func (s *Session) ResolvePause(id int) (*PauseSnapshot, error) {
	if id == 0 {
		snap, ok := s.CurrentPause()
		if !ok {
			return nil, dbgerr.New(dbgerr.NoPause, "no pause snapshot available")
		}
		return snap, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.pauses[id]
	if !ok {
		return nil, dbgerr.Newf(dbgerr.InvalidPause, "no pause with id %d", id)
	}
	return snap, nil
}

// ResolveLivePause looks up a pause for operations that round-trip to
// the target against handles the pause exposed (evaluate_expression,
// inspect_scopes, restart_frame). Such handles
// are valid only while their pause is current; asking
// for any other, even a previously valid, pause id fails with
// invalid-pause rather than a generic target-command-failed.
func (s *Session) ResolveLivePause(id int) (*PauseSnapshot, error) {
	s.mu.Lock()
	current := s.currentPauseID
	s.mu.Unlock()

	if id != 0 && id != current {
		if _, err := s.ResolvePause(id); err != nil {
			return nil, err
		}
		return nil, dbgerr.Newf(dbgerr.InvalidPause, "pause %d is stale: the target has resumed since, handles from it are no longer valid", id)
	}
	return s.ResolvePause(0)
}

// FrameAt returns the call frame at idx within snap's call stack.
func FrameAt(snap *PauseSnapshot, idx int) (CallFrame, error) {
	if snap == nil || idx < 0 || idx >= len(snap.Frames) {
		return CallFrame{}, dbgerr.Newf(dbgerr.InvalidFrame, "frame index %d out of range (stack has %d frames)", idx, len(snap.Frames))
	}
	return snap.Frames[idx], nil
}

// Scripts returns a snapshot of the script catalog in discovery order.
func (s *Session) Scripts() []ScriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScriptEntry, len(s.scripts))
	copy(out, s.scripts)
	return out
}

// ScriptURL returns the URL recorded for scriptID, if known.
func (s *Session) ScriptURL(scriptID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.scriptByID[scriptID]
	return url, ok
}

// ScriptIDForURL returns the script id catalogued for an exact URL
// match, used by continue_to_location to translate a file path into
// the target's native script id.
func (s *Session) ScriptIDForURL(url string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.scriptIDByURL[url]
	return id, ok
}

// DrainConsole takes and clears the buffered console entries.
func (s *Session) DrainConsole() []ConsoleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.console
	s.console = nil
	return out
}

// PutBreakpoint registers a breakpoint in the catalog, keyed by the
// target-assigned id.
func (s *Session) PutBreakpoint(bp Breakpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints[bp.ID] = &bp
}

// Breakpoint returns a previously registered breakpoint by id.
func (s *Session) Breakpoint(id string) (*Breakpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.breakpoints[id]
	return bp, ok
}
