package process

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"e2ectl/pkg/logging"
)

// Probe checks whether a managed process is observably ready.
type Probe interface {
	Check(ctx context.Context) error
}

// PIDProbe reports success while the process can still receive signals. It is
// the weakest useful check and the default for processes without a socket.
type PIDProbe struct {
	Process *ManagedProcess
}

func (p PIDProbe) Check(_ context.Context) error {
	if p.Process.State() != StateRunning {
		return fmt.Errorf("%s has exited", p.Process.Role())
	}
	if err := syscall.Kill(p.Process.PID(), 0); err != nil {
		return fmt.Errorf("%s (PID %d) is not signallable: %w", p.Process.Role(), p.Process.PID(), err)
	}
	return nil
}

// SocketProbe dials the unix domain socket the service listens on.
type SocketProbe struct {
	Path        string
	DialTimeout time.Duration
}

func (p SocketProbe) Check(_ context.Context) error {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	conn, err := net.DialTimeout("unix", p.Path, timeout)
	if err != nil {
		return fmt.Errorf("socket %s not accepting connections: %w", p.Path, err)
	}
	conn.Close()
	return nil
}

// ReadyOptions shapes an AwaitReady call.
type ReadyOptions struct {
	// MinimumWait is slept before the first probe. The suite has always
	// given children a fixed settle period; the probes strengthen it
	// rather than replace it.
	MinimumWait time.Duration
	// Timeout bounds the whole readiness window, settle wait included.
	Timeout time.Duration
	// Interval is the probe polling period. Defaults to 500ms.
	Interval time.Duration
}

// AwaitReady blocks until the process passes the probe, and returns a
// StartError if the process exits first or the timeout elapses.
func AwaitReady(ctx context.Context, p *ManagedProcess, probe Probe, opts ReadyOptions) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	readyCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		readyCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	logging.Debug("Supervisor", "Waiting %s for %s to settle", opts.MinimumWait, p.Role())
	if opts.MinimumWait > 0 {
		settle := time.NewTimer(opts.MinimumWait)
		defer settle.Stop()

		select {
		case <-settle.C:
		case <-p.Exited():
			return exitedEarly(p)
		case <-readyCtx.Done():
			return &StartError{Role: p.Role(), Err: readyCtx.Err(), Stderr: p.stderrTail()}
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.Exited():
			return exitedEarly(p)
		case <-readyCtx.Done():
			return &StartError{
				Role:   p.Role(),
				Err:    fmt.Errorf("not ready after %s: %w", opts.Timeout, readyCtx.Err()),
				Stderr: p.stderrTail(),
			}
		case <-ticker.C:
			err := probe.Check(readyCtx)
			if err == nil {
				logging.Info("Supervisor", "%s is ready (PID %d)", p.Role(), p.PID())
				return nil
			}
			logging.Debug("Supervisor", "%s not ready yet: %v", p.Role(), err)
		}
	}
}

func exitedEarly(p *ManagedProcess) *StartError {
	err := p.ExitErr()
	if err == nil {
		err = fmt.Errorf("exited before becoming ready")
	} else {
		err = fmt.Errorf("exited before becoming ready: %w", err)
	}
	return &StartError{Role: p.Role(), Err: err, Stderr: p.stderrTail()}
}
