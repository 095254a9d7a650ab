// Package launcher spawns the target runtime process and discovers
// its inspector WebSocket endpoint.
package launcher

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tmc/nodedbg/internal/dbgerr"
	"github.com/tmc/nodedbg/internal/discovery"
)

// inspectorURLPattern matches the ws:// endpoint Node-family runtimes
// print to stderr on --inspect-brk startup, e.g.
// "Debugger listening on ws://127.0.0.1:9229/3a8f2c1e-...".
var inspectorURLPattern = regexp.MustCompile(`ws://127\.0\.0\.1:\d+/[\w-]+`)

// Target is a launched runtime process and its resolved inspector endpoint.
type Target struct {
	cmd          *exec.Cmd
	InspectorURL string
	// sessionID identifies this launch for diagnostics and the
	// transcript log. Node-family runtimes embed their own session
	// token in the inspector URL path; this one is ours, minted
	// independently so log correlation doesn't depend on parsing it
	// back out of the URL.
	sessionID  string
	stderrDone chan struct{}
	exited     chan struct{}
	exitOnce   sync.Once
	exitCode   int
	exitErr    error
}

// Options configure Launch.
type Options struct {
	// RuntimePath overrides runtime discovery when non-empty.
	RuntimePath string
	// Args are extra runtime arguments placed after the inspect flag and
	// before the script path.
	Args []string
}

// Launch spawns scriptPath under a runtime with inspect-and-break-on-entry
// semantics and returns once the inspector endpoint has been discovered
// on the child's stderr, or the child exits first.
func Launch(ctx context.Context, scriptPath string, opts Options) (*Target, error) {
	runtimePath := opts.RuntimePath
	if runtimePath == "" {
		runtimePath = discovery.FindBest()
	}
	if runtimePath == "" {
		return nil, dbgerr.New(dbgerr.StartFailed, "no target runtime found on PATH or RUNTIME_EXECUTABLE_PATH")
	}

	args := append([]string{"--inspect-brk=0"}, opts.Args...)
	args = append(args, scriptPath)

	cmd := exec.CommandContext(ctx, runtimePath, args...)
	cmd.Env = sanitizedEnv()
	cmd.Stdout = io.Discard

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, dbgerr.Wrap(errors.Wrap(err, "open stderr pipe"), dbgerr.StartFailed, "open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, dbgerr.Wrap(errors.Wrapf(err, "exec %s", runtimePath), dbgerr.StartFailed, "start target process")
	}

	t := &Target{
		cmd:        cmd,
		sessionID:  uuid.NewString(),
		stderrDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}

	urlCh := make(chan string, 1)
	go t.scanStderr(stderr, urlCh)
	go t.waitExit()

	select {
	case url := <-urlCh:
		t.InspectorURL = url
		return t, nil
	case <-t.exited:
		return nil, dbgerr.Wrapf(t.exitErr, dbgerr.LauncherExitedEarly, "target exited before inspector endpoint appeared (code %d)", t.exitCode)
	case <-ctx.Done():
		t.Kill()
		return nil, ctx.Err()
	}
}

// scanStderr reads the child's stderr line by line looking for the
// inspector URL, then keeps draining the pipe for the process's
// lifetime so the child never blocks on a full stderr buffer.
func (t *Target) scanStderr(r io.Reader, urlCh chan<- string) {
	defer close(t.stderrDone)

	scanner := bufio.NewScanner(r)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !found {
			if m := inspectorURLPattern.FindString(line); m != "" {
				found = true
				urlCh <- m
			}
		}
	}
}

func (t *Target) waitExit() {
	err := t.cmd.Wait()
	t.exitOnce.Do(func() {
		t.exitErr = err
		if t.cmd.ProcessState != nil {
			t.exitCode = t.cmd.ProcessState.ExitCode()
		}
		close(t.exited)
	})
}

// Exited returns a channel closed when the target process exits.
func (t *Target) Exited() <-chan struct{} {
	return t.exited
}

// ExitCode returns the exit code observed after Exited fires.
func (t *Target) ExitCode() int {
	return t.exitCode
}

// SessionID returns the launch's own diagnostic correlation id.
func (t *Target) SessionID() string {
	return t.sessionID
}

// Kill terminates the target process, ignoring errors if it is already dead.
func (t *Target) Kill() {
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
}

// sanitizedEnv strips any inherited inspector configuration so the
// child doesn't race with or duplicate our own --inspect-brk flag.
func sanitizedEnv() []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "NODE_OPTIONS=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
