// Package child spawns the watched application and tracks whether it is still running.
package child

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
)

var ErrSpawnFailed = errors.New("spawn failed")

// Process is a spawned command.
// HasExited is safe to call from any goroutine.
type Process struct {
	cmd    *exec.Cmd
	pid    uint32
	exited atomic.Bool
	doneC  chan struct{}
	err    error
}

func Spawn(name string, args ...string) (*Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, name, err)
	}

	p := &Process{
		cmd:   cmd,
		pid:   uint32(cmd.Process.Pid),
		doneC: make(chan struct{}),
	}

	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	if err != nil {
		slog.Debug("Child exited", "pid", p.pid, "error", err)
	} else {
		slog.Debug("Child exited", "pid", p.pid)
	}

	// err is published by closing doneC.
	p.err = err
	p.exited.Store(true)
	close(p.doneC)
}

func (p *Process) String() string {
	return fmt.Sprintf("child.Process(pid=%d)", p.pid)
}

func (p *Process) PID() uint32 {
	return p.pid
}

func (p *Process) HasExited() bool {
	return p.exited.Load()
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.doneC
}

// Err returns the wait error after Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.doneC:
		return p.err
	default:
		return nil
	}
}

// Stop asks the process to terminate.
func (p *Process) Stop() error {
	if p.HasExited() {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
