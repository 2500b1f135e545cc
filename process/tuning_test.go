package process

import (
	"testing"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
)

// withStubbedTuning replaces the runtime-tuning seams with no-ops for the
// duration of a test, so Init doesn't mutate the real GOMAXPROCS/GOMEMLIMIT
// or require a cgroup-aware environment.
func withStubbedTuning(t *testing.T) {
	t.Helper()
	origMaxProcs, origMemLimit, origTotalMemory := setMaxProcs, setMemLimit, totalMemory
	setMaxProcs = func(...maxprocs.Option) (func(), error) {
		return func() {}, nil
	}
	setMemLimit = func(...memlimit.Option) (int64, error) { return 0, nil }
	totalMemory = func() uint64 { return 1 << 30 }
	t.Cleanup(func() {
		setMaxProcs, setMemLimit, totalMemory = origMaxProcs, origMemLimit, origTotalMemory
	})
}

func TestTuneRuntimeInvokesSeams(t *testing.T) {
	withStubbedTuning(t)

	p := New(DefaultConfig("tune-test"))
	p.tuneRuntime(0)

	if p.maxProcsUndo == nil {
		t.Fatal("expected tuneRuntime to record the automaxprocs undo function")
	}
}
