package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/daabr/chrome-vision/pkg/cdp/runtime"
	"github.com/tmc/nodedbg/internal/cdp"
	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/launcher"
	"github.com/tmc/nodedbg/internal/secureio"
)

// targetHandle is the slice of launcher.Target that the session engine
// depends on. Narrowing it to an interface lets tests substitute a
// fake process (paired with a fakecdp inspector endpoint) without
// spawning a real runtime.
type targetHandle interface {
	Exited() <-chan struct{}
	ExitCode() int
	Kill()
	SessionID() string
}

// launchFn is overridable in tests so the attach sequence can be
// exercised against internal/testutil's fakecdp server instead of a
// real target process.
var launchFn = func(ctx context.Context, scriptPath string, opts launcher.Options) (targetHandle, string, error) {
	t, err := launcher.Launch(ctx, scriptPath, opts)
	if err != nil {
		return nil, "", err
	}
	return t, t.InspectorURL, nil
}

// Session is the engine for one attached target: it owns the process
// handle, the CDP client, and every catalog a tool call reads. The
// Session is the only mutator of its own state; event-intake handlers
// run on the CDP client's read loop and communicate with tool callers
// purely through these catalogs and the pause-waiter list.
type Session struct {
	cfg       config
	target    targetHandle
	client    *cdp.Client
	sessionID string

	mu             sync.Mutex
	terminated     bool
	scripts        []ScriptEntry
	scriptByID     map[string]string
	scriptIDByURL  map[string]string
	console        []ConsoleEntry
	pauses         map[int]*PauseSnapshot
	currentPauseID int
	pauseCounter   int
	breakpoints    map[string]*Breakpoint
	pauseWaiters   []chan *PauseSnapshot
}

// attach runs the attach sequence: launch, dial, enable, release
// from the pre-execution halt, and await the resulting first pause.
func attach(ctx context.Context, scriptPath string, cfg config) (*Session, *PauseSnapshot, error) {
	target, inspectorURL, err := launchFn(ctx, scriptPath, launcher.Options{RuntimePath: cfg.runtimePath})
	if err != nil {
		return nil, nil, dbgerr.Wrap(err, dbgerr.StartFailed, "launch target")
	}

	client, err := cdp.Dial(ctx, inspectorURL)
	if err != nil {
		target.Kill()
		return nil, nil, dbgerr.Wrap(err, dbgerr.StartFailed, "dial inspector endpoint")
	}

	sess := &Session{
		cfg:           cfg,
		target:        target,
		client:        client,
		sessionID:     target.SessionID(),
		scriptByID:    make(map[string]string),
		scriptIDByURL: make(map[string]string),
		pauses:        make(map[int]*PauseSnapshot),
		breakpoints:   make(map[string]*Breakpoint),
	}

	sess.transcribe("attach", map[string]interface{}{"script_path": scriptPath})

	attachCtx, cancel := context.WithTimeout(ctx, cfg.attachTimeout)
	defer cancel()

	// Install the permanent listeners and pre-register a waiter for the
	// initial pause before enabling anything, so the break-on-entry
	// pause can never be lost to a race with the enable round-trips.
	// The permanent paused handler is the single minting point for
	// snapshots; the waiter only observes what it records.
	sess.installPermanentListeners()
	firstPause, cancelWait := sess.subscribePause()
	defer cancelWait()

	teardownOnFailure := func(cause error) (*Session, *PauseSnapshot, error) {
		client.Close()
		target.Kill()
		return nil, nil, dbgerr.Wrap(cause, dbgerr.StartFailed, "attach sequence failed")
	}

	if _, err := client.Send(attachCtx, "Debugger.enable", struct{}{}); err != nil {
		return teardownOnFailure(err)
	}
	if _, err := client.Send(attachCtx, "Runtime.enable", struct{}{}); err != nil {
		return teardownOnFailure(err)
	}
	// Without this the target stays parked at its pre-execution halt
	// forever and no paused event is ever delivered.
	if _, err := client.Send(attachCtx, "Runtime.runIfWaitingForDebugger", struct{}{}); err != nil {
		return teardownOnFailure(err)
	}

	select {
	case snap := <-firstPause:
		go sess.watchTermination()
		return sess, snap, nil
	case <-target.Exited():
		client.Close()
		return nil, nil, dbgerr.Newf(dbgerr.LauncherExitedEarly, "target exited before initial pause (code %d)", target.ExitCode())
	case <-attachCtx.Done():
		return teardownOnFailure(attachCtx.Err())
	}
}

func (s *Session) installPermanentListeners() {
	s.client.On("Debugger.scriptParsed", s.onScriptParsed)
	s.client.On("Runtime.consoleAPICalled", s.onConsoleAPICalled)
	s.client.On("Debugger.paused", s.recordPause)
}

func (s *Session) watchTermination() {
	select {
	case <-s.client.Closed():
	case <-s.target.Exited():
	}
	s.Terminate()
}

// onScriptParsed appends a script-catalog entry when a URL is present.
func (s *Session) onScriptParsed(raw json.RawMessage) {
	var ev rawScriptParsedEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.URL == "" {
		return
	}
	s.mu.Lock()
	s.scriptByID[ev.ScriptID] = ev.URL
	s.scriptIDByURL[ev.URL] = ev.ScriptID
	s.scripts = append(s.scripts, ScriptEntry{ScriptID: ev.ScriptID, URL: ev.URL})
	s.mu.Unlock()
}

// onConsoleAPICalled formats and appends one console buffer entry.
func (s *Session) onConsoleAPICalled(raw json.RawMessage) {
	var ev runtime.ConsoleAPICalled
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	entry := ConsoleEntry{Level: ev.Type, Text: formatConsoleArgs(ev.Args)}

	s.mu.Lock()
	s.console = append(s.console, entry)
	if cap := s.cfg.consoleBufferCap; cap > 0 && len(s.console) > cap {
		s.console = s.console[len(s.console)-cap:]
	}
	s.mu.Unlock()
}

func formatConsoleArgs(args []runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, FormatRemoteObjectValue(a))
	}
	return strings.Join(parts, " ")
}

// FormatRemoteObjectValue renders a CDP remote object the way console
// output and property listings do: its primitive value if present,
// else its description, else its bare type tag.
func FormatRemoteObjectValue(o runtime.RemoteObject) string {
	if len(o.Value) > 0 {
		var v interface{}
		if err := json.Unmarshal(o.Value, &v); err == nil {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	if o.Description != "" {
		return o.Description
	}
	return o.Type
}

// recordPause is the single minting point for pause snapshots: every
// pause, the bootstrap break-on-entry included, goes through the same
// bookkeeping and wakes whatever waiters are registered, whether that
// is attach awaiting the first pause or a resume-race in flight.
func (s *Session) recordPause(raw json.RawMessage) {
	var ev rawPausedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.cfg.logger.Errorf("decode Debugger.paused: %v", err)
		return
	}

	frames := make([]CallFrame, 0, len(ev.CallFrames))
	for _, cf := range ev.CallFrames {
		scopes := make([]ScopeDescriptor, 0, len(cf.ScopeChain))
		for _, sc := range cf.ScopeChain {
			obj := sc.Object
			scopes = append(scopes, ScopeDescriptor{Kind: sc.Type, Name: sc.Name, Object: &obj})
		}
		this := cf.This
		frames = append(frames, CallFrame{
			FrameID:      cf.CallFrameID,
			FunctionName: cf.FunctionName,
			Location:     cf.Location,
			URL:          cf.URL,
			ScopeChain:   scopes,
			This:         &this,
		})
	}

	s.mu.Lock()
	s.pauseCounter++
	id := s.pauseCounter
	snap := &PauseSnapshot{ID: id, Generation: id, Reason: ev.Reason, Frames: frames}
	s.pauses[id] = snap
	s.currentPauseID = id
	waiters := s.pauseWaiters
	s.pauseWaiters = nil
	s.mu.Unlock()

	s.transcribe("paused", map[string]interface{}{"pause_id": id, "reason": ev.Reason})

	for _, w := range waiters {
		select {
		case w <- snap:
		default:
		}
	}
}

func (s *Session) subscribePause() (<-chan *PauseSnapshot, func()) {
	ch := make(chan *PauseSnapshot, 1)
	s.mu.Lock()
	s.pauseWaiters = append(s.pauseWaiters, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		for i, w := range s.pauseWaiters {
			if w == ch {
				s.pauseWaiters = append(s.pauseWaiters[:i], s.pauseWaiters[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// RaceResult is the outcome of ResumeRace: exactly one of Paused or
// Exited is populated.
type RaceResult struct {
	Paused   *PauseSnapshot
	Exited   bool
	ExitCode int
}

// ResumeRace is the building block every execution-control tool uses:
// it issues a CDP command that lets the target run, then waits
// for either the next pause or target exit, whichever comes first. The
// pause waiter is registered before the command is sent so the
// resulting pause can never be lost to the race.
func (s *Session) ResumeRace(ctx context.Context, method string, params interface{}) (*RaceResult, error) {
	if s.isTerminated() {
		return nil, dbgerr.New(dbgerr.NoSession, "no active debug session")
	}

	waiterCh, cancel := s.subscribePause()
	defer cancel()
	exitedCh := s.target.Exited()
	closedCh := s.client.Closed()

	s.transcribe("command", map[string]interface{}{"method": method})
	if _, err := s.client.Send(ctx, method, params); err != nil {
		return nil, dbgerr.Wrap(err, dbgerr.TargetCommandFailed, "issue "+method)
	}

	select {
	case snap := <-waiterCh:
		return &RaceResult{Paused: snap}, nil
	case <-exitedCh:
		code := s.target.ExitCode()
		s.Terminate()
		return &RaceResult{Exited: true, ExitCode: code}, nil
	case <-closedCh:
		return nil, dbgerr.New(dbgerr.TransportClosed, "cdp connection closed during resume")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate tears the session down: kill the target (best-effort),
// close the CDP client, and mark it so Manager.Current surfaces
// no-session afterward. Idempotent.
func (s *Session) Terminate() {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.mu.Unlock()

	s.target.Kill()
	s.client.Close()
}

func (s *Session) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Client exposes the raw CDP client for tool handlers that issue
// commands directly (breakpoints, evaluation, property enumeration).
func (s *Session) Client() *cdp.Client {
	return s.client
}

// Logger returns the session's diagnostic-stream logger.
func (s *Session) Logger() *dbgerr.Logger {
	return s.cfg.logger
}

// SessionID returns the launch's diagnostic correlation id.
func (s *Session) SessionID() string {
	return s.sessionID
}

// transcriptLine is one append-only entry of the session transcript
// log, enabled by WithTranscript.
type transcriptLine struct {
	SessionID string      `json:"session_id"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
}

// transcribe appends one line to the transcript log, if enabled.
// Failures are logged but never surfaced to the caller: the transcript
// is a diagnostic aid, not part of the session's correctness contract.
func (s *Session) transcribe(event string, data interface{}) {
	if s.cfg.transcriptPath == "" {
		return
	}
	line, err := json.Marshal(transcriptLine{SessionID: s.sessionID, Event: event, Data: data})
	if err != nil {
		s.cfg.logger.Errorf("marshal transcript line: %v", err)
		return
	}
	if err := secureio.AppendLine(s.cfg.transcriptPath, line); err != nil {
		s.cfg.logger.Errorf("write transcript line: %v", err)
	}
}
