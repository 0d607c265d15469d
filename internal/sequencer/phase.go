package sequencer

import (
	"fmt"
	"time"
)

// Phase names one step of the run. The token is what the console and the
// report file print.
type Phase string

const (
	PhaseBuild          Phase = "build"
	PhaseStaticChecks   Phase = "static-checks"
	PhaseUnitTests      Phase = "unit-tests"
	PhaseDocTests       Phase = "doc-tests"
	PhaseStartEmulator  Phase = "start-emulator"
	PhaseResolveSlot    Phase = "resolve-slot"
	PhaseStartService   Phase = "start-service"
	PhaseNormalTests    Phase = "normal-tests"
	PhasePersistBefore  Phase = "persistent-before"
	PhaseInjectFixture  Phase = "inject-fixture"
	PhaseReload         Phase = "reload"
	PhasePersistAfter   Phase = "persistent-after"
	PhaseRestartService Phase = "restart-service"
	PhaseStressTests    Phase = "stress-tests"
	PhaseCombinedTests  Phase = "combined-tests"
	PhaseCleanup        Phase = "cleanup"
)

// Result classifies a finished phase.
type Result string

const (
	ResultPassed  Result = "PASSED"
	ResultFailed  Result = "FAILED"
	ResultSkipped Result = "SKIPPED"
	ResultError   Result = "ERROR"
)

// PhaseResult is the record of one executed phase.
type PhaseResult struct {
	Phase    Phase
	Result   Result
	Duration time.Duration
	// Output carries the underlying tool output for failures and the skip
	// reason for skips. Successful phases leave it empty.
	Output string
	Err    string
}

// Fatal reports whether this phase outcome aborts the run.
func (r PhaseResult) Fatal() bool {
	return r.Result == ResultFailed || r.Result == ResultError
}

// RunResult is the record of one whole orchestration run.
type RunResult struct {
	RunID    string
	Provider string
	Started  time.Time
	Duration time.Duration
	Phases   []PhaseResult
}

// Counts tallies the phase outcomes.
func (r *RunResult) Counts() (passed, failed, skipped, errored int) {
	for _, p := range r.Phases {
		switch p.Result {
		case ResultPassed:
			passed++
		case ResultFailed:
			failed++
		case ResultSkipped:
			skipped++
		case ResultError:
			errored++
		}
	}
	return passed, failed, skipped, errored
}

// Success reports whether every executed phase passed or was skipped.
func (r *RunResult) Success() bool {
	_, failed, _, errored := r.Counts()
	return failed == 0 && errored == 0
}

// PhaseError reports a phase whose underlying tool invocation failed. The
// captured tool output is the primary diagnostic surface; the orchestrator
// does not reinterpret it beyond exit-code classification.
type PhaseError struct {
	Phase  Phase
	Output string
	Err    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// skipError marks a phase that chose not to run. Never fatal.
type skipError struct {
	reason string
}

func (e *skipError) Error() string {
	return e.reason
}

func skipf(format string, args ...interface{}) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

// Reporter receives progress callbacks during a run. Implementations decide
// presentation; the sequencer only reports facts.
type Reporter interface {
	// ReportRunStart is called once before the first phase. totalPhases
	// includes the final cleanup phase.
	ReportRunStart(result *RunResult, totalPhases int)
	// ReportPhaseStart is called before each phase executes.
	ReportPhaseStart(phase Phase)
	// ReportPhaseResult is called after each phase completes.
	ReportPhaseResult(result PhaseResult)
	// ReportRunResult is called once, after cleanup, with the full record.
	ReportRunResult(result *RunResult)
}

// noopReporter keeps the sequencer usable without a console attached.
type noopReporter struct{}

func (noopReporter) ReportRunStart(*RunResult, int) {}
func (noopReporter) ReportPhaseStart(Phase)         {}
func (noopReporter) ReportPhaseResult(PhaseResult)  {}
func (noopReporter) ReportRunResult(*RunResult)     {}
