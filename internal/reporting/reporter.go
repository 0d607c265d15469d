// Package reporting renders run progress for humans and machines: a console
// reporter for interactive use, a quiet reporter for CI logs, and a YAML
// report file per run.
package reporting

import (
	"fmt"
	"io"
	"strings"

	"e2ectl/internal/color"
	"e2ectl/internal/sequencer"
)

var (
	_ sequencer.Reporter = (*ConsoleReporter)(nil)
	_ sequencer.Reporter = (*QuietReporter)(nil)
)

// ConsoleReporter prints progress as phases run. In compact mode each phase
// collapses to a single "name... symbol (duration)" line; verbose mode gives
// every phase its own start and result lines and prints phase counts.
type ConsoleReporter struct {
	out     io.Writer
	verbose bool

	total int
	index int
}

// NewConsoleReporter creates a console reporter writing to out.
func NewConsoleReporter(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{out: out, verbose: verbose}
}

func (c *ConsoleReporter) ReportRunStart(result *sequencer.RunResult, totalPhases int) {
	c.total = totalPhases
	c.index = 0

	fmt.Fprintf(c.out, "🧪 End-to-end run %s\n", shortID(result.RunID))
	fmt.Fprintf(c.out, "🔐 Provider: %s\n", result.Provider)
	if c.verbose {
		fmt.Fprintf(c.out, "📋 Phases: %d\n", totalPhases)
	}
	fmt.Fprintf(c.out, "\n")
}

func (c *ConsoleReporter) ReportPhaseStart(phase sequencer.Phase) {
	c.index++
	if c.verbose {
		fmt.Fprintf(c.out, "🎯 [%d/%d] Phase: %s\n", c.index, c.total, phase)
	} else {
		fmt.Fprintf(c.out, "🎯 [%d/%d] %s... ", c.index, c.total, phase)
	}
}

func (c *ConsoleReporter) ReportPhaseResult(res sequencer.PhaseResult) {
	symbol := resultSymbol(res.Result)
	if c.verbose {
		fmt.Fprintf(c.out, "%s %s (%v)\n", symbol, res.Phase, res.Duration)
	} else {
		fmt.Fprintf(c.out, "%s (%v)\n", symbol, res.Duration)
	}

	switch res.Result {
	case sequencer.ResultSkipped:
		fmt.Fprintf(c.out, "   %s\n", color.Warning.Render(res.Output))
	case sequencer.ResultFailed, sequencer.ResultError:
		if res.Err != "" {
			fmt.Fprintf(c.out, "   %s\n", color.Failure.Render(res.Err))
		}
		if res.Output != "" {
			fmt.Fprintf(c.out, "%s\n", indent(res.Output, "   "))
		}
	}
}

func (c *ConsoleReporter) ReportRunResult(result *sequencer.RunResult) {
	passed, failed, skipped, errored := result.Counts()

	fmt.Fprintf(c.out, "\n🏁 Run complete\n")
	fmt.Fprintf(c.out, "⏱️  Duration: %v\n", result.Duration)
	fmt.Fprintf(c.out, "📊 Results:\n")
	fmt.Fprintf(c.out, "   ✅ Passed: %d\n", passed)
	if failed > 0 {
		fmt.Fprintf(c.out, "   ❌ Failed: %d\n", failed)
	}
	if errored > 0 {
		fmt.Fprintf(c.out, "   💥 Errors: %d\n", errored)
	}
	if skipped > 0 {
		fmt.Fprintf(c.out, "   ⏭️  Skipped: %d\n", skipped)
	}

	if result.Success() {
		fmt.Fprintf(c.out, "\n%s\n", color.Success.Render("🎉 All phases passed!"))
	} else {
		fmt.Fprintf(c.out, "\n%s\n", color.Failure.Render("💔 Run failed"))
	}
}

// QuietReporter emits only fatal phase results and one final summary line.
// Meant for CI, where the orchestrator's own chatter would bury the tool
// output that actually explains a failure.
type QuietReporter struct {
	out io.Writer
}

// NewQuietReporter creates a reporter that only outputs essential information.
func NewQuietReporter(out io.Writer) *QuietReporter {
	return &QuietReporter{out: out}
}

func (q *QuietReporter) ReportRunStart(*sequencer.RunResult, int) {}

func (q *QuietReporter) ReportPhaseStart(sequencer.Phase) {}

func (q *QuietReporter) ReportPhaseResult(res sequencer.PhaseResult) {
	if !res.Fatal() {
		return
	}
	fmt.Fprintf(q.out, "%s %s: %s\n", resultSymbol(res.Result), res.Phase, res.Err)
	if res.Output != "" {
		fmt.Fprintf(q.out, "%s\n", res.Output)
	}
}

func (q *QuietReporter) ReportRunResult(result *sequencer.RunResult) {
	passed, failed, _, errored := result.Counts()
	if result.Success() {
		fmt.Fprintf(q.out, "✅ All %d phases passed\n", passed)
	} else {
		fmt.Fprintf(q.out, "❌ %d/%d phases failed\n", failed+errored, len(result.Phases))
	}
}

// resultSymbol returns the marker printed for a phase outcome.
func resultSymbol(result sequencer.Result) string {
	switch result {
	case sequencer.ResultPassed:
		return "✅"
	case sequencer.ResultFailed:
		return "❌"
	case sequencer.ResultSkipped:
		return "⏭️"
	case sequencer.ResultError:
		return "💥"
	default:
		return "❓"
	}
}

// shortID returns the leading segment of a run ID, enough to tell runs apart
// in console lines and filenames.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
