package reporting

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"e2ectl/internal/sequencer"
)

func sampleResult() *sequencer.RunResult {
	return &sequencer.RunResult{
		RunID:    "3f8e9c3a-5b86-4c41-9d3e-2f1a6b7c8d90",
		Provider: "pkcs11",
		Started:  time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
		Duration: 92 * time.Second,
		Phases: []sequencer.PhaseResult{
			{Phase: sequencer.PhaseBuild, Result: sequencer.ResultPassed, Duration: 80 * time.Second},
			{
				Phase:    sequencer.PhaseStaticChecks,
				Result:   sequencer.ResultSkipped,
				Duration: 10 * time.Millisecond,
				Output:   "cargo fmt and cargo clippy are not installed",
			},
			{Phase: sequencer.PhaseCleanup, Result: sequencer.ResultPassed, Duration: 2 * time.Second},
		},
	}
}

func playback(r sequencer.Reporter, result *sequencer.RunResult) {
	r.ReportRunStart(result, len(result.Phases))
	for _, p := range result.Phases {
		r.ReportPhaseStart(p.Phase)
		r.ReportPhaseResult(p)
	}
	r.ReportRunResult(result)
}

func TestConsoleReporterCompact(t *testing.T) {
	var buf bytes.Buffer
	playback(NewConsoleReporter(&buf, false), sampleResult())
	out := buf.String()

	assert.Contains(t, out, "End-to-end run 3f8e9c3a")
	assert.Contains(t, out, "Provider: pkcs11")
	assert.NotContains(t, out, "Phases: 3")

	assert.Contains(t, out, "[1/3] build... ")
	assert.Contains(t, out, "✅ (1m20s)")
	assert.Contains(t, out, "[2/3] static-checks... ")
	assert.Contains(t, out, "cargo fmt and cargo clippy are not installed")
	assert.Contains(t, out, "[3/3] cleanup... ")

	assert.Contains(t, out, "Duration: 1m32s")
	assert.Contains(t, out, "Passed: 2")
	assert.Contains(t, out, "Skipped: 1")
	assert.Contains(t, out, "All phases passed!")
	assert.NotContains(t, out, "Failed:")
}

func TestConsoleReporterVerbose(t *testing.T) {
	var buf bytes.Buffer
	playback(NewConsoleReporter(&buf, true), sampleResult())
	out := buf.String()

	assert.Contains(t, out, "Phases: 3")
	assert.Contains(t, out, "[1/3] Phase: build\n")
	assert.Contains(t, out, "✅ build (1m20s)")
}

func TestConsoleReporterShowsFailureDetail(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false)

	r.ReportPhaseStart(sequencer.PhaseUnitTests)
	r.ReportPhaseResult(sequencer.PhaseResult{
		Phase:    sequencer.PhaseUnitTests,
		Result:   sequencer.ResultFailed,
		Duration: 3 * time.Second,
		Output:   "test persistence::before ... FAILED\nfailures:\n    persistence::before",
		Err:      "phase unit-tests failed: exit status 101",
	})
	out := buf.String()

	assert.Contains(t, out, "❌ (3s)")
	assert.Contains(t, out, "phase unit-tests failed: exit status 101")
	assert.Contains(t, out, "   test persistence::before ... FAILED")
	assert.Contains(t, out, "       persistence::before")
}

func TestConsoleReporterFailedRunVerdict(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult()
	result.Phases[0].Result = sequencer.ResultError
	result.Phases[0].Err = "failed to start service"

	playback(NewConsoleReporter(&buf, false), result)
	out := buf.String()

	assert.Contains(t, out, "Errors: 1")
	assert.Contains(t, out, "Run failed")
	assert.NotContains(t, out, "All phases passed!")
}

func TestQuietReporterStaysQuietOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	playback(NewQuietReporter(&buf), sampleResult())

	assert.Equal(t, "✅ All 2 phases passed\n", buf.String())
}

func TestQuietReporterPrintsFatalPhases(t *testing.T) {
	var buf bytes.Buffer
	r := NewQuietReporter(&buf)

	r.ReportPhaseResult(sequencer.PhaseResult{
		Phase:  sequencer.PhaseBuild,
		Result: sequencer.ResultFailed,
		Output: "error[E0425]: cannot find value",
		Err:    "phase build failed: exit status 101",
	})
	out := buf.String()

	assert.Contains(t, out, "❌ build: phase build failed: exit status 101")
	assert.Contains(t, out, "error[E0425]: cannot find value")
}

func TestQuietReporterFailureSummary(t *testing.T) {
	var buf bytes.Buffer
	result := sampleResult()
	result.Phases[1].Result = sequencer.ResultFailed

	NewQuietReporter(&buf).ReportRunResult(result)

	assert.Equal(t, "❌ 1/3 phases failed\n", buf.String())
}

func TestResultSymbol(t *testing.T) {
	tests := []struct {
		result sequencer.Result
		want   string
	}{
		{sequencer.ResultPassed, "✅"},
		{sequencer.ResultFailed, "❌"},
		{sequencer.ResultSkipped, "⏭️"},
		{sequencer.ResultError, "💥"},
		{sequencer.Result("bogus"), "❓"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resultSymbol(tt.result))
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f8e9c3a", shortID("3f8e9c3a-5b86-4c41-9d3e-2f1a6b7c8d90"))
	assert.Equal(t, "plain", shortID("plain"))
	assert.Equal(t, "", shortID(""))
}
