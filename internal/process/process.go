package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"e2ectl/pkg/logging"
)

// Role names the harness-level job a child process performs.
type Role string

const (
	// RoleEmulator is the hardware simulator started before the service.
	RoleEmulator Role = "emulator"
	// RoleService is the service under test.
	RoleService Role = "service"
)

// State tracks where a managed process is in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StartError reports that a required child process failed to launch, or
// exited or never became ready during its readiness window. Always fatal to
// the run.
type StartError struct {
	Role   Role
	Err    error
	Stderr string
}

func (e *StartError) Error() string {
	msg := fmt.Sprintf("%s failed to start", e.Role)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// SignalError reports a signal aimed at a process that cannot receive it,
// usually because it already exited. Callers decide severity: a failed stop
// is tolerable, a failed reload is not.
type SignalError struct {
	Role   Role
	Signal string
	Err    error
}

func (e *SignalError) Error() string {
	msg := fmt.Sprintf("failed to deliver %s to %s", e.Signal, e.Role)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SignalError) Unwrap() error {
	return e.Err
}

// logCapture captures stdout and stderr from a child process.
type logCapture struct {
	stdoutBuf    *bytes.Buffer
	stderrBuf    *bytes.Buffer
	stdoutReader *io.PipeReader
	stderrReader *io.PipeReader
	stdoutWriter *io.PipeWriter
	stderrWriter *io.PipeWriter
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

func newLogCapture() *logCapture {
	lc := &logCapture{
		stdoutBuf: &bytes.Buffer{},
		stderrBuf: &bytes.Buffer{},
	}

	lc.stdoutReader, lc.stdoutWriter = io.Pipe()
	lc.stderrReader, lc.stderrWriter = io.Pipe()

	lc.wg.Add(2)
	go lc.captureOutput(lc.stdoutReader, lc.stdoutBuf)
	go lc.captureOutput(lc.stderrReader, lc.stderrBuf)

	return lc
}

func (lc *logCapture) captureOutput(reader io.Reader, buffer *bytes.Buffer) {
	defer lc.wg.Done()

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		lc.mu.Lock()
		buffer.WriteString(line + "\n")
		lc.mu.Unlock()
	}
}

// close closes the capture pipes and waits for the readers to drain.
func (lc *logCapture) close() {
	lc.stdoutWriter.Close()
	lc.stderrWriter.Close()
	lc.wg.Wait()
}

func (lc *logCapture) stdout() string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.stdoutBuf.String()
}

func (lc *logCapture) stderr() string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.stderrBuf.String()
}

// Logs is the captured output of a managed process.
type Logs struct {
	Stdout   string
	Stderr   string
	Combined string
}

// StartSpec describes a child process to launch.
type StartSpec struct {
	// Path is the executable, looked up on PATH if not absolute.
	Path string
	Args []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env entries are appended to the current environment, so they win
	// over inherited values.
	Env []string
}

// ManagedProcess is one supervised child. It is created by Supervisor.Start
// and mutated only by its exit observer and the Supervisor.
type ManagedProcess struct {
	role    Role
	cmd     *exec.Cmd
	capture *logCapture
	done    chan struct{}

	mu      sync.RWMutex
	state   State
	exitErr error
}

// Role returns the harness role this process fills.
func (p *ManagedProcess) Role() Role {
	return p.role
}

// PID returns the operating system process ID.
func (p *ManagedProcess) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// State returns the current lifecycle state.
func (p *ManagedProcess) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Exited returns a channel that is closed once the process has exited and
// been reaped.
func (p *ManagedProcess) Exited() <-chan struct{} {
	return p.done
}

// ExitErr returns the error cmd.Wait reported, if the process has exited.
func (p *ManagedProcess) ExitErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Logs returns the output captured so far.
func (p *ManagedProcess) Logs() *Logs {
	stdout := p.capture.stdout()
	stderr := p.capture.stderr()

	combined := ""
	if stdout != "" {
		combined += "=== STDOUT ===\n" + stdout
	}
	if stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += "=== STDERR ===\n" + stderr
	}

	return &Logs{
		Stdout:   stdout,
		Stderr:   stderr,
		Combined: combined,
	}
}

// stderrTail returns the last few captured stderr lines for error reports.
func (p *ManagedProcess) stderrTail() string {
	const tailLines = 20

	lines := strings.Split(strings.TrimRight(p.capture.stderr(), "\n"), "\n")
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return strings.Join(lines, "\n")
}

// markStopped records an exit observed outside the wait goroutine's control
// flow. Safe to call more than once.
func (p *ManagedProcess) markStopped(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateStopped {
		return
	}
	p.state = StateStopped
	p.exitErr = err
}

// Supervisor starts, signals, and stops the harness's child processes. At
// most one process per role may be running at a time.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[Role]*ManagedProcess
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		processes: make(map[Role]*ManagedProcess),
	}
}

// Start launches the process described by spec under the given role. The
// child gets its own process group so a hard kill takes its descendants with
// it. Starting a role that is already running is an error.
func (s *Supervisor) Start(ctx context.Context, role Role, spec StartSpec) (*ManagedProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.processes[role]; existing != nil && existing.State() == StateRunning {
		return nil, fmt.Errorf("a %s process is already running (PID %d)", role, existing.PID())
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	capture := newLogCapture()
	cmd.Stdout = capture.stdoutWriter
	cmd.Stderr = capture.stderrWriter

	if err := cmd.Start(); err != nil {
		capture.close()
		return nil, &StartError{Role: role, Err: err}
	}

	p := &ManagedProcess{
		role:    role,
		cmd:     cmd,
		capture: capture,
		done:    make(chan struct{}),
		state:   StateRunning,
	}

	go func() {
		err := cmd.Wait()
		p.markStopped(err)
		capture.close()
		close(p.done)
	}()

	s.processes[role] = p
	logging.Info("Supervisor", "Started %s: %s (PID %d)", role, spec.Path, p.PID())
	return p, nil
}

// Get returns the tracked process for role, or nil.
func (s *Supervisor) Get(role Role) *ManagedProcess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes[role]
}

// Running reports whether a process is currently running under role.
func (s *Supervisor) Running(role Role) bool {
	p := s.Get(role)
	return p != nil && p.State() == StateRunning
}

// Reload delivers SIGHUP to a running process. The call is fire-and-forget:
// it does not wait for the target to finish re-reading its state. Signalling
// a process that is not running is a SignalError.
func (s *Supervisor) Reload(p *ManagedProcess) error {
	if p == nil || p.State() != StateRunning {
		return &SignalError{Role: roleOf(p), Signal: "SIGHUP", Err: fmt.Errorf("process is not running")}
	}

	if err := p.cmd.Process.Signal(syscall.SIGHUP); err != nil {
		return &SignalError{Role: p.role, Signal: "SIGHUP", Err: err}
	}

	logging.Info("Supervisor", "Sent SIGHUP to %s (PID %d)", p.role, p.PID())
	return nil
}

// Stop terminates a managed process. With a positive grace it sends SIGTERM
// first and escalates to a process-group SIGKILL when the grace expires; with
// zero grace it kills immediately. Stopping a process that already exited is
// a no-op.
func (s *Supervisor) Stop(p *ManagedProcess, grace time.Duration) error {
	if p == nil || p.State() != StateRunning {
		return nil
	}

	pid := p.PID()
	if grace <= 0 {
		return s.kill(p)
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process likely exited between the state check and the
		// signal. Escalate; kill treats a gone process as success.
		logging.Debug("Supervisor", "SIGTERM to %s (PID %d) failed: %v", p.role, pid, err)
		return s.kill(p)
	}

	select {
	case <-p.done:
		logging.Info("Supervisor", "Stopped %s (PID %d) gracefully", p.role, pid)
		return nil
	case <-time.After(grace):
		logging.Warn("Supervisor", "%s (PID %d) did not exit within %s, killing", p.role, pid, grace)
		return s.kill(p)
	}
}

// StopRole stops whatever process is tracked under role. Nothing tracked is
// success.
func (s *Supervisor) StopRole(role Role, grace time.Duration) error {
	return s.Stop(s.Get(role), grace)
}

// kill hard-kills the process group and waits for the exit observer.
func (s *Supervisor) kill(p *ManagedProcess) error {
	pid := p.PID()
	if pid > 0 {
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			// Fall back to the single process.
			if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
				return &SignalError{Role: p.role, Signal: "SIGKILL", Err: killErr}
			}
		}
	}

	<-p.done
	logging.Info("Supervisor", "Killed %s (PID %d)", p.role, pid)
	return nil
}

// ReapByName hard-kills any process whose executable name matches exactly.
// This is the cleanup fallback for children the supervisor lost track of. No
// matching process is success.
func ReapByName(name string) error {
	cmd := exec.Command("pkill", "-KILL", "-x", name)
	err := cmd.Run()
	if err == nil {
		logging.Info("Supervisor", "Reaped stray %s process(es)", name)
		return nil
	}

	// pkill exits 1 when nothing matched.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		logging.Warn("Supervisor", "pkill not available, skipping reap of %s", name)
		return nil
	}
	return fmt.Errorf("failed to reap %s: %w", name, err)
}

func roleOf(p *ManagedProcess) Role {
	if p == nil {
		return ""
	}
	return p.role
}
