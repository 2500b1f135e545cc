package process

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/PolySat/libproc-sub000/clock"
	"github.com/PolySat/libproc-sub000/cmdproto"
	"github.com/PolySat/libproc-sub000/critstate"
	"github.com/PolySat/libproc-sub000/eventloop"
)

// Process is the outermost façade: one event loop, one command engine, one
// critical-state store, a clock, and a table of supervised children.
type Process struct {
	Name  string
	cfg   Config
	log   eventloop.Logger
	Clock clock.Clock

	Loop   *eventloop.Loop
	Engine *cmdproto.Engine
	Store  *critstate.Store

	sigBridge    *eventloop.SignalBridge
	maxProcsUndo func()
	onReload     func()

	procFile string
	pidFile  string

	mu       sync.Mutex
	children map[string]*child
}

// Option configures a Process at construction time.
type Option func(*Process)

// WithLogger routes the process's own log lines (distinct from the
// loop/engine/store's own Logger options, which are set independently)
// through l.
func WithLogger(l eventloop.Logger) Option {
	return func(p *Process) { p.log = l }
}

// WithClock supplies the time source for both application code and the
// event loop's own timer scheduling and poll deadlines: Init threads it
// into eventloop.New via eventloop.WithClock, so a clock.Virtual or
// clock.SharedVirtual genuinely drives the loop Run built on.
func WithClock(c clock.Clock) Option {
	return func(p *Process) { p.Clock = c }
}

// New constructs a Process without performing any I/O; call Init to bring
// up the event loop, command socket, critical-state store, identity files,
// and signal handling.
func New(cfg Config, opts ...Option) *Process {
	p := &Process{
		Name:     cfg.Name,
		cfg:      cfg,
		log:      eventloop.NoOpLogger{},
		Clock:    clock.NewReal(),
		children: make(map[string]*child),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Process) logf(level eventloop.LogLevel, format string, args ...any) {
	if p.log == nil || !p.log.IsEnabled(level) {
		return
	}
	p.log.Log(eventloop.LogEntry{Level: level, Category: "process", Message: fmt.Sprintf(format, args...)})
}

// Init tunes the runtime, opens the command socket and critical-state
// store, writes the process identity files, and installs signal handling
// for SIGINT/SIGTERM/SIGHUP/SIGCHLD, in this order: runtime tuning, event
// loop and command socket, optional service table, critical-state store,
// identity files, signal bridge.
func (p *Process) Init() error {
	p.tuneRuntime(p.cfg.MemLimitRatio)

	laddr, err := net.ResolveUDPAddr("udp4", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("process: resolve listen address %q: %w", p.cfg.ListenAddr, err)
	}

	loop, err := eventloop.New(eventloop.WithLogger(p.log), eventloop.WithClock(p.Clock))
	if err != nil {
		return fmt.Errorf("process: create event loop: %w", err)
	}
	p.Loop = loop

	engine, err := cmdproto.New(loop, laddr, cmdproto.WithLogger(p.log))
	if err != nil {
		return fmt.Errorf("process: create command engine: %w", err)
	}
	p.Engine = engine

	if p.cfg.ServiceTablePath != "" {
		table, err := cmdproto.LoadServiceTable(p.cfg.ServiceTablePath)
		if err != nil {
			p.logf(eventloop.LevelWarn, "loading service table %s: %v", p.cfg.ServiceTablePath, err)
		} else {
			p.Engine.SetServiceTable(table)
		}
	}

	store, err := critstate.Open(p.cfg.CriticalStateDir, p.Name, critstate.WithLogger(p.log))
	if err != nil {
		return fmt.Errorf("process: open critical-state store: %w", err)
	}
	p.Store = store

	if p.Name != "" {
		procFile, pidFile, err := writeIdentityFiles(p.cfg.ProcDir, p.cfg.PIDDir, p.Name)
		if err != nil {
			p.logf(eventloop.LevelWarn, "writing identity files: %v", err)
		}
		p.procFile, p.pidFile = procFile, pidFile
	}

	if err := p.installSignalHandling(); err != nil {
		return fmt.Errorf("process: install signal handling: %w", err)
	}

	return nil
}

// RegisterLegacyHandler is a thin pass-through to the command engine.
func (p *Process) RegisterLegacyHandler(cmd byte, protected bool, fn cmdproto.LegacyHandler) error {
	return p.Engine.RegisterLegacyHandler(cmd, protected, fn)
}

// RegisterXDRHandler is a thin pass-through to the command engine.
func (p *Process) RegisterXDRHandler(cmd uint32, h cmdproto.XDRHandler) error {
	return p.Engine.RegisterXDRHandler(cmd, h)
}

// Run delegates to the event loop, exiting it when ctx is cancelled.
func (p *Process) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Loop.Exit()
		case <-done:
		}
	}()
	return p.Loop.Run()
}

// Close tears down the engine, signal bridge, event loop, and removes the
// identity files, mirroring PROC_cleanup.
func (p *Process) Close() error {
	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.stopChildren()

	if p.maxProcsUndo != nil {
		p.maxProcsUndo()
	}
	if p.sigBridge != nil {
		recordErr(p.sigBridge.Close())
	}
	if p.Engine != nil {
		recordErr(p.Engine.Close())
	}
	if p.Loop != nil {
		recordErr(p.Loop.Close())
	}
	removeIdentityFiles(p.procFile, p.pidFile)
	return firstErr
}
