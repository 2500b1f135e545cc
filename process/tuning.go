package process

import (
	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pbnjay/memory"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/PolySat/libproc-sub000/eventloop"
)

// Testability seams: a test can stub these out so Init doesn't actually
// mutate process-wide GOMAXPROCS/GOMEMLIMIT on every run.
var (
	setMaxProcs = maxprocs.Set
	setMemLimit = memlimit.SetGoMemLimitWithOpts
	totalMemory = memory.TotalMemory
)

// tuneRuntime right-sizes GOMAXPROCS and GOMEMLIMIT for the (often
// cgroup-constrained) flight computer this process runs on, and logs the
// system's total physical memory for visibility.
func (p *Process) tuneRuntime(ratio float64) {
	if undo, err := setMaxProcs(); err != nil {
		p.logf(eventloop.LevelWarn, "automaxprocs: %v", err)
	} else {
		p.maxProcsUndo = undo
	}

	if ratio <= 0 {
		ratio = 0.9
	}
	if _, err := setMemLimit(memlimit.WithRatio(ratio)); err != nil {
		p.logf(eventloop.LevelWarn, "automemlimit: %v", err)
	}

	p.logf(eventloop.LevelInfo, "system memory: %d bytes", totalMemory())
}
