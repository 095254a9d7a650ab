package session

import (
	"context"

	"github.com/tmc/nodedbg/internal/launcher"
)

// TargetHandle is targetHandle exported as a type alias so that other
// packages' tests can supply a fake launch via SetLaunchFnForTest
// without spawning a real target process.
type TargetHandle = targetHandle

// SetLaunchFnForTest overrides the launch step used by Manager.Start
// for the duration of a test. It returns a function that restores the
// previous behavior; callers should defer it.
func SetLaunchFnForTest(fn func(ctx context.Context, scriptPath string, opts launcher.Options) (TargetHandle, string, error)) (restore func()) {
	prev := launchFn
	launchFn = fn
	return func() { launchFn = prev }
}
