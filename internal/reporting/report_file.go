package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"e2ectl/internal/sequencer"
)

// runReport is the YAML document written per run. Durations are humanized
// strings so the file reads well when dumped into a CI log.
type runReport struct {
	RunID    string        `yaml:"runId"`
	Provider string        `yaml:"provider"`
	Started  time.Time     `yaml:"started"`
	Duration string        `yaml:"duration"`
	Success  bool          `yaml:"success"`
	Summary  reportSummary `yaml:"summary"`
	Phases   []phaseReport `yaml:"phases"`
}

type reportSummary struct {
	Passed  int `yaml:"passed"`
	Failed  int `yaml:"failed"`
	Skipped int `yaml:"skipped"`
	Errors  int `yaml:"errors"`
}

type phaseReport struct {
	Phase    string `yaml:"phase"`
	Result   string `yaml:"result"`
	Duration string `yaml:"duration"`
	Output   string `yaml:"output,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// SaveReport writes the run record as one YAML file under dir and returns
// the file's path. The filename carries the start timestamp and the short
// run ID, so repeated runs never collide.
func SaveReport(dir string, result *sequencer.RunResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := yaml.Marshal(buildReport(result))
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	filename := fmt.Sprintf("e2ectl-report-%s-%s.yaml",
		result.Started.Format("20060102-150405"), shortID(result.RunID))
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func buildReport(result *sequencer.RunResult) runReport {
	passed, failed, skipped, errored := result.Counts()
	report := runReport{
		RunID:    result.RunID,
		Provider: result.Provider,
		Started:  result.Started,
		Duration: result.Duration.String(),
		Success:  result.Success(),
		Summary: reportSummary{
			Passed:  passed,
			Failed:  failed,
			Skipped: skipped,
			Errors:  errored,
		},
	}
	for _, p := range result.Phases {
		report.Phases = append(report.Phases, phaseReport{
			Phase:    string(p.Phase),
			Result:   string(p.Result),
			Duration: p.Duration.String(),
			Output:   p.Output,
			Error:    p.Err,
		})
	}
	return report
}
