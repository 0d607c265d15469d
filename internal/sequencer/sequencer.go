package sequencer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"e2ectl/internal/cleanup"
	"e2ectl/internal/config"
	"e2ectl/internal/fixture"
	"e2ectl/internal/process"
	"e2ectl/internal/providercfg"
	"e2ectl/internal/testrun"
	"e2ectl/internal/tools"
	"e2ectl/pkg/logging"
)

// Test name filters understood by the service's end-to-end suite.
const (
	filterNormal       = "normal_tests"
	filterPersistFirst = "persistent_before"
	filterPersistAfter = "persistent_after"
	filterStress       = "stress_test"
	filterCombined     = "all_providers"
)

// step pairs a phase token with its action.
type step struct {
	phase Phase
	run   func(ctx context.Context) error
}

// Sequencer drives one run: it owns the plan, the supervised child
// processes, the fixture injector, and the cleanup guard.
type Sequencer struct {
	run      *testrun.TestRun
	cfg      *config.HarnessConfig
	runner   *tools.Runner
	sup      *process.Supervisor
	injector *fixture.Injector
	guard    *cleanup.Guard
	reporter Reporter

	// planFn is replaced in tests to drive the loop with fake steps.
	planFn func() []step

	service *process.ManagedProcess
}

// New assembles a Sequencer for one validated run.
func New(run *testrun.TestRun, cfg *config.HarnessConfig, reporter Reporter) *Sequencer {
	if reporter == nil {
		reporter = noopReporter{}
	}

	s := &Sequencer{
		run:      run,
		cfg:      cfg,
		runner:   tools.NewRunner(cfg.Service.Dir, cfg.Environment.ChildEnv()),
		sup:      process.NewSupervisor(),
		injector: fixture.NewInjector(cfg.Service.MappingsPath()),
		guard:    cleanup.NewGuard(),
		reporter: reporter,
	}
	s.planFn = s.defaultPlan
	return s
}

// Plan returns the ordered phase tokens this run will execute, the final
// cleanup phase included.
func (s *Sequencer) Plan() []Phase {
	steps := s.planFn()
	phases := make([]Phase, 0, len(steps)+1)
	for _, st := range steps {
		phases = append(phases, st.phase)
	}
	return append(phases, PhaseCleanup)
}

// Run executes the plan. The cleanup guard is registered before the first
// phase and runs on every exit path; a fatal phase aborts the remainder but
// never cleanup. The returned RunResult is complete even on failure.
func (s *Sequencer) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:    s.run.ID,
		Provider: string(s.run.Provider),
		Started:  time.Now(),
	}

	s.registerCleanup()
	defer s.guard.Run()

	steps := s.planFn()
	s.reporter.ReportRunStart(result, len(steps)+1)
	logging.Info("Sequencer", "Run %s: provider %s, %d phases", s.run.ID, s.run.Provider, len(steps)+1)

	fatal := s.executePlan(ctx, result, steps)

	cleanupResult, cleanupErr := s.executeCleanup()
	result.Phases = append(result.Phases, cleanupResult)

	result.Duration = time.Since(result.Started).Round(time.Millisecond)
	s.reporter.ReportRunResult(result)

	if fatal != nil {
		return result, fatal
	}
	return result, cleanupErr
}

// executePlan runs steps in order and halts at the first fatal outcome.
func (s *Sequencer) executePlan(ctx context.Context, result *RunResult, steps []step) error {
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			logging.Warn("Sequencer", "Run interrupted before phase %s: %v", st.phase, err)
			return err
		}

		phaseResult, err := s.executeStep(ctx, st)
		result.Phases = append(result.Phases, phaseResult)
		if err != nil {
			return err
		}
	}
	return nil
}

// executeStep runs one phase and classifies its outcome. The returned error
// is non-nil only for fatal outcomes.
func (s *Sequencer) executeStep(ctx context.Context, st step) (PhaseResult, error) {
	s.reporter.ReportPhaseStart(st.phase)
	logging.Info("Sequencer", "Phase: %s", st.phase)

	start := time.Now()
	err := st.run(ctx)
	phaseResult := PhaseResult{
		Phase:    st.phase,
		Result:   ResultPassed,
		Duration: time.Since(start).Round(time.Millisecond),
	}

	var skip *skipError
	var phaseErr *PhaseError
	var startErr *process.StartError
	switch {
	case err == nil:
	case errors.As(err, &skip):
		phaseResult.Result = ResultSkipped
		phaseResult.Output = skip.reason
		err = nil
	case errors.As(err, &phaseErr):
		phaseResult.Result = ResultFailed
		phaseResult.Output = phaseErr.Output
		phaseResult.Err = err.Error()
	case errors.As(err, &startErr):
		phaseResult.Result = ResultError
		phaseResult.Output = startErr.Stderr
		phaseResult.Err = err.Error()
	default:
		phaseResult.Result = ResultError
		phaseResult.Err = err.Error()
	}

	s.reporter.ReportPhaseResult(phaseResult)
	return phaseResult, err
}

// executeCleanup runs the guard and reports it as a phase of its own.
func (s *Sequencer) executeCleanup() (PhaseResult, error) {
	s.reporter.ReportPhaseStart(PhaseCleanup)
	logging.Info("Sequencer", "Phase: %s", PhaseCleanup)

	start := time.Now()
	err := s.guard.Run()
	phaseResult := PhaseResult{
		Phase:    PhaseCleanup,
		Result:   ResultPassed,
		Duration: time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		phaseResult.Result = ResultError
		phaseResult.Err = err.Error()
	}

	s.reporter.ReportPhaseResult(phaseResult)
	return phaseResult, err
}

// defaultPlan builds the phase list for the run's provider selection.
func (s *Sequencer) defaultPlan() []step {
	steps := []step{
		{PhaseBuild, s.stepBuild},
		{PhaseStaticChecks, s.stepStaticChecks},
		{PhaseUnitTests, s.stepUnitTests},
		{PhaseDocTests, s.stepDocTests},
	}

	if s.run.Provider.NeedsEmulator() {
		steps = append(steps, step{PhaseStartEmulator, s.stepStartEmulator})
	}
	if s.run.Provider.NeedsSlotResolution() {
		steps = append(steps, step{PhaseResolveSlot, s.stepResolveSlot})
	}
	steps = append(steps, step{PhaseStartService, s.stepStartService})

	if s.run.Provider == testrun.ProviderAll {
		return append(steps, step{PhaseCombinedTests, s.stepCombinedTests})
	}

	steps = append(steps,
		step{PhaseNormalTests, s.stepNormalTests},
		step{PhasePersistBefore, s.stepPersistentBefore},
		step{PhaseInjectFixture, s.stepInjectFixture},
		step{PhaseReload, s.stepReload},
		step{PhasePersistAfter, s.stepPersistentAfter},
	)

	if s.run.StressEnabled {
		steps = append(steps,
			step{PhaseRestartService, s.stepRestartService},
			step{PhaseStressTests, s.stepStressTests},
		)
	}
	return steps
}

// registerCleanup installs the full teardown set before the first phase.
// The guard runs tasks last-registered-first, so registration order here is
// the reverse of execution order.
func (s *Sequencer) registerCleanup() {
	cfg := s.cfg

	if s.run.CleanOnExit {
		s.guard.Register("purge build artifacts", func() error {
			_, err := s.runner.Clean(context.Background())
			return err
		})
	}

	s.guard.Register("remove emulator state file", func() error {
		if cfg.Emulator.StateFile == "" {
			return nil
		}
		err := os.Remove(cfg.Emulator.StateFilePath(cfg.Service.Dir))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})

	s.guard.Register("remove mapping store", func() error {
		return os.RemoveAll(cfg.Service.MappingsPath())
	})

	s.guard.Register("remove injected fixtures", s.injector.RemoveAll)

	s.guard.Register("strip slot_number lines", func() error {
		_, err := providercfg.StripSlotNumbers(s.run.ConfigPath)
		return err
	})

	s.guard.Register("reap stray processes", func() error {
		names := []string{filepath.Base(cfg.Service.BinaryPath())}
		if s.run.Provider.NeedsEmulator() {
			names = append(names, filepath.Base(cfg.Emulator.Binary))
		}
		var errs []error
		for _, name := range names {
			errs = append(errs, process.ReapByName(name))
		}
		return errors.Join(errs...)
	})

	s.guard.Register("stop emulator", func() error {
		return s.sup.StopRole(process.RoleEmulator, cfg.Timing.StopGrace)
	})

	s.guard.Register("stop service", func() error {
		return s.sup.StopRole(process.RoleService, cfg.Timing.StopGrace)
	})
}

func (s *Sequencer) stepBuild(ctx context.Context) error {
	out, err := s.runner.Build(ctx, s.run.FeatureList())
	if err != nil {
		return &PhaseError{Phase: PhaseBuild, Output: out.Combined(), Err: err}
	}
	return nil
}

func (s *Sequencer) stepStaticChecks(ctx context.Context) error {
	ranAny := false

	if s.runner.HasFmt(ctx) {
		ranAny = true
		if out, err := s.runner.FmtCheck(ctx); err != nil {
			return &PhaseError{Phase: PhaseStaticChecks, Output: out.Combined(), Err: err}
		}
	}
	if s.runner.HasClippy(ctx) {
		ranAny = true
		if out, err := s.runner.Clippy(ctx, s.run.FeatureList()); err != nil {
			return &PhaseError{Phase: PhaseStaticChecks, Output: out.Combined(), Err: err}
		}
	}

	if !ranAny {
		return skipf("cargo fmt and cargo clippy are not installed")
	}
	return nil
}

func (s *Sequencer) stepUnitTests(ctx context.Context) error {
	out, err := s.runner.TestLib(ctx, s.run.FeatureList())
	if err != nil {
		return &PhaseError{Phase: PhaseUnitTests, Output: out.Combined(), Err: err}
	}
	return nil
}

func (s *Sequencer) stepDocTests(ctx context.Context) error {
	out, err := s.runner.TestDoc(ctx, s.run.FeatureList())
	if err != nil {
		return &PhaseError{Phase: PhaseDocTests, Output: out.Combined(), Err: err}
	}
	return nil
}

func (s *Sequencer) stepStartEmulator(ctx context.Context) error {
	cfg := s.cfg
	stateDir := cfg.Emulator.StateDirOrDefault(cfg.Service.Dir)

	p, err := s.sup.Start(ctx, process.RoleEmulator, process.StartSpec{
		Path: cfg.Emulator.Binary,
		Dir:  stateDir,
	})
	if err != nil {
		return err
	}

	err = process.AwaitReady(ctx, p, process.PIDProbe{Process: p}, process.ReadyOptions{
		MinimumWait: cfg.Timing.EmulatorStartWait,
		Timeout:     cfg.Timing.ReadyTimeout,
		Interval:    cfg.Timing.ReadyInterval,
	})
	if err != nil {
		return err
	}

	return tools.InitEmulator(ctx, stateDir, cfg.Emulator.InitCommands)
}

func (s *Sequencer) stepResolveSlot(ctx context.Context) error {
	if len(s.cfg.PKCS11.InitTokenArgs) > 0 {
		if out, err := tools.InitToken(ctx, s.cfg.PKCS11.Tool, s.cfg.PKCS11.InitTokenArgs); err != nil {
			return &PhaseError{Phase: PhaseResolveSlot, Output: out.Combined(), Err: err}
		}
	}

	slot, err := tools.DiscoverSlot(ctx, s.cfg.PKCS11.Tool)
	if err != nil {
		return err
	}

	// Appended here, stripped by the cleanup guard.
	return providercfg.AppendSlotNumber(s.run.ConfigPath, slot)
}

func (s *Sequencer) stepStartService(ctx context.Context) error {
	return s.startService(ctx, s.cfg.Environment.ChildEnv())
}

// startService validates the provider configuration, launches the service,
// and waits for it to become ready.
func (s *Sequencer) startService(ctx context.Context, env []string) error {
	svcCfg, err := providercfg.Load(s.run.ConfigPath)
	if err != nil {
		return err
	}
	if err := providercfg.Validate(svcCfg, s.run.Provider.ServiceTypes()); err != nil {
		return err
	}

	p, err := s.sup.Start(ctx, process.RoleService, process.StartSpec{
		Path: s.cfg.Service.BinaryPath(),
		Args: []string{"--config", s.run.ConfigPath},
		Dir:  s.cfg.Service.Dir,
		Env:  env,
	})
	if err != nil {
		return err
	}
	s.service = p

	var probe process.Probe = process.PIDProbe{Process: p}
	if s.cfg.Service.SocketPath != "" {
		probe = process.SocketProbe{Path: s.cfg.Service.SocketPath}
	}
	return process.AwaitReady(ctx, p, probe, process.ReadyOptions{
		MinimumWait: s.cfg.Timing.ServiceStartWait,
		Timeout:     s.cfg.Timing.ReadyTimeout,
		Interval:    s.cfg.Timing.ReadyInterval,
	})
}

func (s *Sequencer) stepNormalTests(ctx context.Context) error {
	return s.testPhase(ctx, PhaseNormalTests, filterNormal)
}

func (s *Sequencer) stepPersistentBefore(ctx context.Context) error {
	return s.testPhase(ctx, PhasePersistBefore, filterPersistFirst)
}

func (s *Sequencer) stepInjectFixture(_ context.Context) error {
	_, err := s.injector.Inject(fixture.Mapping{
		AppName: s.cfg.Fixture.AppName,
		KeyName: s.cfg.Fixture.KeyName,
		Slot:    s.run.Provider.MappingSlot(),
		Record:  fixture.Record{KeyID: s.cfg.Fixture.KeyID, Flags: fixture.DefaultFlags},
	})
	return err
}

func (s *Sequencer) stepReload(ctx context.Context) error {
	if err := s.sup.Reload(s.service); err != nil {
		return err
	}

	// The service rereads its store asynchronously; later phases observe the
	// result, so give it the configured window before moving on.
	select {
	case <-time.After(s.cfg.Timing.ReloadWait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) stepPersistentAfter(ctx context.Context) error {
	return s.testPhase(ctx, PhasePersistAfter, filterPersistAfter)
}

func (s *Sequencer) stepRestartService(ctx context.Context) error {
	if err := s.sup.Stop(s.service, s.cfg.Timing.StopGrace); err != nil {
		return err
	}
	return s.startService(ctx, s.cfg.Environment.StressEnv())
}

func (s *Sequencer) stepStressTests(ctx context.Context) error {
	return s.testPhase(ctx, PhaseStressTests, filterStress)
}

func (s *Sequencer) stepCombinedTests(ctx context.Context) error {
	return s.testPhase(ctx, PhaseCombinedTests, filterCombined)
}

func (s *Sequencer) testPhase(ctx context.Context, phase Phase, filter string) error {
	out, err := s.runner.TestFilter(ctx, s.run.FeatureList(), filter)
	if err != nil {
		return &PhaseError{Phase: phase, Output: out.Combined(), Err: err}
	}
	return nil
}
