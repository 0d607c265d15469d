package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"e2ectl/internal/color"
	"e2ectl/internal/config"
	"e2ectl/internal/reporting"
	"e2ectl/internal/sequencer"
	"e2ectl/internal/testrun"
	"e2ectl/pkg/logging"
)

var (
	flagNoCargoClean bool
	flagNoStressTest bool
	flagVerbose      bool
	flagQuiet        bool
	flagDebug        bool
	flagConfigPath   string
	flagReportDir    string
)

// rootCmd represents the base command. e2ectl has a single action, so the
// provider selection is a positional argument rather than a subcommand.
var rootCmd = &cobra.Command{
	Use:   "e2ectl <provider>",
	Short: "Drive end-to-end validation runs of the keyhaven service",
	Long: `e2ectl builds the keyhaven service, runs its static checks and unit
tests, then starts the service with the selected security provider and drives
the end-to-end suites against it: the normal tests, the key persistence
tests around a configuration reload, and a stress suite against a freshly
restarted service.

Providers:
  software   software keystore backend
  pkcs11     PKCS#11 backend (resolves the token slot before starting)
  tpm        TPM backend (starts the TPM simulator first)
  all        every backend in one service, checked by the combined suite

A run always ends with a cleanup phase that stops the launched processes and
removes the state the run created, whatever the earlier phases did.`,
	Example: `  e2ectl software
  e2ectl pkcs11 --verbose
  e2ectl tpm --no-cargo-clean
  e2ectl all --quiet --report ./reports`,
	// Providers are positional args, not subcommands. Without this a root
	// command that has subcommands rejects any positional arg as unknown.
	Args:              cobra.ArbitraryArgs,
	ValidArgsFunction: completeProviderArg,
	RunE:              runRoot,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. It is called once, by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "e2ectl version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero.
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.Flags().BoolVar(&flagNoCargoClean, "no-cargo-clean", false, "Keep build artifacts instead of running cargo clean during cleanup")
	rootCmd.Flags().BoolVar(&flagNoStressTest, "no-stress-test", false, "Skip the service restart and the stress suite")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Print a start and result line for every phase")
	rootCmd.Flags().BoolVar(&flagQuiet, "quiet", false, "Only print fatal phases and the final summary")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&flagConfigPath, "config", "", "Path to an e2ectl configuration file layered over the defaults")
	rootCmd.Flags().StringVar(&flagReportDir, "report", "", "Directory to save a YAML run report (default: no report file)")

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// completeProviderArg provides shell completion for the provider argument.
func completeProviderArg(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var tokens []string
	for _, p := range testrun.Providers() {
		tokens = append(tokens, string(p))
	}
	return tokens, cobra.ShellCompDirectiveNoFileComp
}

func runRoot(cmd *cobra.Command, args []string) error {
	logLevel := logging.LevelInfo
	switch {
	case flagDebug:
		logLevel = logging.LevelDebug
	case flagQuiet:
		logLevel = logging.LevelError
	}
	logging.InitForCLI(logLevel, cmd.ErrOrStderr())
	color.Initialize(true)

	cfg, err := config.LoadConfig(flagConfigPath)
	if err != nil {
		cmd.SilenceUsage = true
		return err
	}

	run, err := testrun.Resolve(args, cfg.Service, flagNoCargoClean, flagNoStressTest)
	if err != nil {
		// Selection mistakes keep cobra's usage output; everything after
		// this point is a runtime failure and silences it.
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, finishing cleanup...")
		cancel()
	}()

	var reporter sequencer.Reporter = reporting.NewConsoleReporter(cmd.OutOrStdout(), flagVerbose)
	if flagQuiet {
		reporter = reporting.NewQuietReporter(cmd.OutOrStdout())
	}

	result, runErr := sequencer.New(run, &cfg, reporter).Run(ctx)

	if dir := reportDir(cfg); dir != "" {
		if path, saveErr := reporting.SaveReport(dir, result); saveErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Failed to save report: %v\n", saveErr)
		} else if !flagQuiet {
			fmt.Fprintf(cmd.OutOrStdout(), "📄 Report saved to: %s\n", path)
		}
	}

	return runErr
}

// reportDir resolves where report files go. The flag wins over configuration;
// empty means no report file.
func reportDir(cfg config.HarnessConfig) string {
	if flagReportDir != "" {
		return flagReportDir
	}
	return cfg.Reports.Dir
}
