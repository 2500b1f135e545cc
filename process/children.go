package process

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/PolySat/libproc-sub000/eventloop"
)

// RestartPolicy controls whether Process.reapChildren restarts a
// supervised child after it exits.
type RestartPolicy int

const (
	// RestartNever leaves the child exited once it terminates.
	RestartNever RestartPolicy = iota
	// RestartAlways restarts the child on every exit, regardless of code.
	RestartAlways
	// RestartOnFailure restarts the child only when it exits non-zero.
	RestartOnFailure
)

// ChildSpec describes a child process to supervise.
type ChildSpec struct {
	Command       string
	Args          []string
	RestartPolicy RestartPolicy
}

// ChildStatus is a snapshot of a supervised child's state.
type ChildStatus struct {
	Name         string
	PID          int
	Running      bool
	LastExitCode int
	Restarts     int
}

type child struct {
	spec   ChildSpec
	cmd    *exec.Cmd
	status ChildStatus
}

// Supervise starts a child process under the given name and tracks it for
// SIGCHLD-driven reaping and restart, the Go-native stand-in for
// PROC_fork_child's fork/exec/track loop (the fork/exec helper itself
// remains out of scope; os/exec.Cmd supplants it).
func (p *Process) Supervise(name string, spec ChildSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.children[name]; exists {
		return fmt.Errorf("process: child %q already supervised", name)
	}

	c, err := p.startChild(name, spec)
	if err != nil {
		return err
	}
	p.children[name] = c
	return nil
}

func (p *Process) startChild(name string, spec ChildSpec) (*child, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start child %q: %w", name, err)
	}
	return &child{
		spec: spec,
		cmd:  cmd,
		status: ChildStatus{
			Name:    name,
			PID:     cmd.Process.Pid,
			Running: true,
		},
	}, nil
}

// Children returns a snapshot of every supervised child's status.
func (p *Process) Children() []ChildStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChildStatus, 0, len(p.children))
	for _, c := range p.children {
		out = append(out, c.status)
	}
	return out
}

// reapChildren drains every exited child via a non-blocking Wait4 loop,
// the restart-policy-aware sibling of proclib.c's sigchld_handler.
func (p *Process) reapChildren() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		p.mu.Lock()
		var name string
		var c *child
		for n, candidate := range p.children {
			if candidate.cmd.Process != nil && candidate.cmd.Process.Pid == pid {
				name, c = n, candidate
				break
			}
		}
		if c == nil {
			p.mu.Unlock()
			continue
		}

		c.status.Running = false
		c.status.LastExitCode = ws.ExitStatus()
		restart := c.spec.RestartPolicy == RestartAlways ||
			(c.spec.RestartPolicy == RestartOnFailure && ws.ExitStatus() != 0)
		p.mu.Unlock()

		p.logf(eventloop.LevelInfo, "child %q (pid %d) exited, code=%d", name, pid, ws.ExitStatus())

		if !restart {
			continue
		}
		p.restartChild(name)
	}
}

func (p *Process) restartChild(name string) {
	p.mu.Lock()
	c, ok := p.children[name]
	if !ok {
		p.mu.Unlock()
		return
	}
	spec := c.spec
	p.mu.Unlock()

	nc, err := p.startChild(name, spec)
	if err != nil {
		p.logf(eventloop.LevelWarn, "restarting child %q: %v", name, err)
		return
	}
	nc.status.Restarts = c.status.Restarts + 1

	p.mu.Lock()
	p.children[name] = nc
	p.mu.Unlock()
}

// stopChildren signals every still-running supervised child to terminate,
// called from Process.Close.
func (p *Process) stopChildren() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.children {
		if c.status.Running && c.cmd.Process != nil {
			_ = c.cmd.Process.Signal(syscall.SIGTERM)
		}
	}
}
