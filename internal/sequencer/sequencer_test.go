package sequencer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2ectl/internal/config"
	"e2ectl/internal/process"
	"e2ectl/internal/testrun"
)

// recordingReporter captures every callback for assertion.
type recordingReporter struct {
	startTotal   int
	phaseStarts  []Phase
	phaseResults []PhaseResult
	final        *RunResult
}

func (r *recordingReporter) ReportRunStart(_ *RunResult, total int) { r.startTotal = total }
func (r *recordingReporter) ReportPhaseStart(p Phase)               { r.phaseStarts = append(r.phaseStarts, p) }
func (r *recordingReporter) ReportPhaseResult(res PhaseResult)      { r.phaseResults = append(r.phaseResults, res) }
func (r *recordingReporter) ReportRunResult(res *RunResult)         { r.final = res }

// testConfig returns the compiled-in defaults rooted in a temp dir so
// cleanup tasks only ever touch files owned by the test.
func testConfig(t *testing.T) *config.HarnessConfig {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.Service.Dir = t.TempDir()
	return &cfg
}

func newTestSequencer(t *testing.T, token string) *Sequencer {
	t.Helper()
	cfg := testConfig(t)
	run, err := testrun.Resolve([]string{token}, cfg.Service, true, false)
	require.NoError(t, err)
	return New(run, cfg, nil)
}

func TestPlanPerProvider(t *testing.T) {
	fullSuite := []Phase{
		PhaseNormalTests, PhasePersistBefore, PhaseInjectFixture,
		PhaseReload, PhasePersistAfter,
	}
	checks := []Phase{PhaseBuild, PhaseStaticChecks, PhaseUnitTests, PhaseDocTests}

	tests := []struct {
		name     string
		token    string
		noStress bool
		want     []Phase
	}{
		{
			name:  "software",
			token: "software",
			want: join(checks,
				[]Phase{PhaseStartService}, fullSuite,
				[]Phase{PhaseRestartService, PhaseStressTests, PhaseCleanup}),
		},
		{
			name:  "pkcs11 resolves the slot first",
			token: "pkcs11",
			want: join(checks,
				[]Phase{PhaseResolveSlot, PhaseStartService}, fullSuite,
				[]Phase{PhaseRestartService, PhaseStressTests, PhaseCleanup}),
		},
		{
			name:  "tpm starts the emulator first",
			token: "tpm",
			want: join(checks,
				[]Phase{PhaseStartEmulator, PhaseStartService}, fullSuite,
				[]Phase{PhaseRestartService, PhaseStressTests, PhaseCleanup}),
		},
		{
			name:  "all runs the combined suite only",
			token: "all",
			want: join(checks,
				[]Phase{PhaseStartEmulator, PhaseStartService, PhaseCombinedTests, PhaseCleanup}),
		},
		{
			name:     "stress can be switched off",
			token:    "software",
			noStress: true,
			want: join(checks,
				[]Phase{PhaseStartService}, fullSuite, []Phase{PhaseCleanup}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			run, err := testrun.Resolve([]string{tt.token}, cfg.Service, true, tt.noStress)
			require.NoError(t, err)

			s := New(run, cfg, nil)
			assert.Equal(t, tt.want, s.Plan())
		})
	}
}

func join(lists ...[]Phase) []Phase {
	var out []Phase
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func TestExecuteStepClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantResult Result
		wantOutput string
		wantFatal  bool
	}{
		{
			name:       "success",
			err:        nil,
			wantResult: ResultPassed,
		},
		{
			name:       "skip is recorded but not fatal",
			err:        skipf("cargo fmt and cargo clippy are not installed"),
			wantResult: ResultSkipped,
			wantOutput: "cargo fmt and cargo clippy are not installed",
		},
		{
			name: "tool failure carries its output",
			err: &PhaseError{
				Phase:  PhaseUnitTests,
				Output: "test persistence ... FAILED",
				Err:    errors.New("exit status 101"),
			},
			wantResult: ResultFailed,
			wantOutput: "test persistence ... FAILED",
			wantFatal:  true,
		},
		{
			name: "start failure carries stderr",
			err: &process.StartError{
				Role:   process.RoleService,
				Err:    errors.New("exit status 1"),
				Stderr: "bind: address already in use",
			},
			wantResult: ResultError,
			wantOutput: "bind: address already in use",
			wantFatal:  true,
		},
		{
			name:       "unexpected error",
			err:        errors.New("mapping store is not writable"),
			wantResult: ResultError,
			wantFatal:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSequencer(t, "software")
			st := step{phase: PhaseUnitTests, run: func(context.Context) error { return tt.err }}

			res, err := s.executeStep(context.Background(), st)

			assert.Equal(t, PhaseUnitTests, res.Phase)
			assert.Equal(t, tt.wantResult, res.Result)
			assert.Equal(t, tt.wantOutput, res.Output)
			assert.Equal(t, tt.wantFatal, res.Fatal())
			if tt.wantFatal {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExecutePlanHaltsAtFirstFatal(t *testing.T) {
	s := newTestSequencer(t, "software")

	var ran []Phase
	mkStep := func(phase Phase, err error) step {
		return step{phase: phase, run: func(context.Context) error {
			ran = append(ran, phase)
			return err
		}}
	}
	steps := []step{
		mkStep(PhaseBuild, nil),
		mkStep(PhaseUnitTests, &PhaseError{Phase: PhaseUnitTests, Err: errors.New("exit status 101")}),
		mkStep(PhaseDocTests, nil),
	}

	result := &RunResult{}
	err := s.executePlan(context.Background(), result, steps)

	require.Error(t, err)
	assert.Equal(t, []Phase{PhaseBuild, PhaseUnitTests}, ran)
	require.Len(t, result.Phases, 2)
	assert.Equal(t, ResultPassed, result.Phases[0].Result)
	assert.Equal(t, ResultFailed, result.Phases[1].Result)
}

func TestExecutePlanContinuesPastSkips(t *testing.T) {
	s := newTestSequencer(t, "software")

	steps := []step{
		{phase: PhaseStaticChecks, run: func(context.Context) error { return skipf("tools missing") }},
		{phase: PhaseUnitTests, run: func(context.Context) error { return nil }},
	}

	result := &RunResult{}
	err := s.executePlan(context.Background(), result, steps)

	require.NoError(t, err)
	require.Len(t, result.Phases, 2)
	assert.Equal(t, ResultSkipped, result.Phases[0].Result)
	assert.Equal(t, "tools missing", result.Phases[0].Output)
	assert.Equal(t, ResultPassed, result.Phases[1].Result)
}

func TestExecutePlanStopsWhenContextCancelled(t *testing.T) {
	s := newTestSequencer(t, "software")
	ctx, cancel := context.WithCancel(context.Background())

	ran := 0
	steps := []step{
		{phase: PhaseBuild, run: func(context.Context) error {
			ran++
			cancel()
			return nil
		}},
		{phase: PhaseUnitTests, run: func(context.Context) error {
			ran++
			return nil
		}},
	}

	result := &RunResult{}
	err := s.executePlan(ctx, result, steps)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ran)
	require.Len(t, result.Phases, 1)
}

func TestRunAlwaysFinishesWithCleanup(t *testing.T) {
	s := newTestSequencer(t, "software")
	reporter := &recordingReporter{}
	s.reporter = reporter
	s.planFn = func() []step {
		return []step{{phase: PhaseBuild, run: func(context.Context) error { return nil }}}
	}

	result, err := s.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, result.Phases, 2)
	assert.Equal(t, PhaseBuild, result.Phases[0].Phase)
	assert.Equal(t, PhaseCleanup, result.Phases[1].Phase)
	assert.Equal(t, ResultPassed, result.Phases[1].Result)
	assert.True(t, result.Success())

	assert.Equal(t, 2, reporter.startTotal)
	assert.Equal(t, []Phase{PhaseBuild, PhaseCleanup}, reporter.phaseStarts)
	require.NotNil(t, reporter.final)
	assert.Equal(t, result, reporter.final)
}

func TestRunCleansUpAfterPhaseFailure(t *testing.T) {
	s := newTestSequencer(t, "software")

	cleanupRan := false
	s.guard.Register("observe cleanup", func() error {
		cleanupRan = true
		return nil
	})
	s.planFn = func() []step {
		return []step{
			{phase: PhaseBuild, run: func(context.Context) error {
				return &PhaseError{Phase: PhaseBuild, Output: "error[E0425]", Err: errors.New("exit status 101")}
			}},
			{phase: PhaseUnitTests, run: func(context.Context) error {
				t.Fatal("phases after a fatal failure must not run")
				return nil
			}},
		}
	}

	result, err := s.Run(context.Background())

	require.Error(t, err)
	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, PhaseBuild, phaseErr.Phase)

	assert.True(t, cleanupRan)
	require.Len(t, result.Phases, 2)
	assert.Equal(t, PhaseCleanup, result.Phases[1].Phase)
	assert.Equal(t, ResultPassed, result.Phases[1].Result)
	assert.False(t, result.Success())
}

func TestRunReportsCleanupFailure(t *testing.T) {
	s := newTestSequencer(t, "software")
	s.guard.Register("broken teardown", func() error {
		return errors.New("device busy")
	})
	s.planFn = func() []step {
		return []step{{phase: PhaseBuild, run: func(context.Context) error { return nil }}}
	}

	result, err := s.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")

	last := result.Phases[len(result.Phases)-1]
	assert.Equal(t, PhaseCleanup, last.Phase)
	assert.Equal(t, ResultError, last.Result)
	assert.Contains(t, last.Err, "device busy")
	assert.False(t, result.Success())
}

func TestRunHonorsCancelledContext(t *testing.T) {
	s := newTestSequencer(t, "software")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.planFn = func() []step {
		return []step{{phase: PhaseBuild, run: func(context.Context) error {
			t.Fatal("no phase may run after cancellation")
			return nil
		}}}
	}

	result, err := s.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, result.Phases, 1)
	assert.Equal(t, PhaseCleanup, result.Phases[0].Phase)
}

func TestRunCarriesRunIdentity(t *testing.T) {
	cfg := testConfig(t)
	run, err := testrun.Resolve([]string{"tpm"}, cfg.Service, true, false)
	require.NoError(t, err)

	s := New(run, cfg, nil)
	s.planFn = func() []step { return nil }

	result, runErr := s.Run(context.Background())

	require.NoError(t, runErr)
	assert.Equal(t, run.ID, result.RunID)
	assert.Equal(t, "tpm", result.Provider)
	assert.False(t, result.Started.IsZero())
}
