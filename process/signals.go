package process

import (
	"os"
	"syscall"

	"github.com/PolySat/libproc-sub000/eventloop"
)

// OnReload registers a callback invoked when the process receives SIGHUP.
// Only the most recently registered callback is kept.
func (p *Process) OnReload(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = fn
}

func (p *Process) installSignalHandling() error {
	bridge, err := eventloop.NewSignalBridge(syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGCHLD)
	if err != nil {
		return err
	}
	p.sigBridge = bridge
	return p.Loop.AddFd(bridge.Fd(), eventloop.EventRead, p.onSignalReadable)
}

func (p *Process) onSignalReadable(int, eventloop.IOEvents) {
	for _, sig := range p.sigBridge.Drain() {
		p.dispatchSignal(sig)
	}
}

func (p *Process) dispatchSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM:
		p.logf(eventloop.LevelInfo, "received %v, exiting loop", sig)
		p.Loop.Exit()
	case syscall.SIGHUP:
		p.mu.Lock()
		fn := p.onReload
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	case syscall.SIGCHLD:
		p.reapChildren()
	}
}
