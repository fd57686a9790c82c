// Tripwright is a links-only travel planning agent: it plans trips as a
// typed workflow graph over an LLM, local memory and deterministic
// search-link tools, and never fabricates live prices.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/telemetry"
	"github.com/tripwright/tripwright/pkg/version"
)

var (
	flagRuntimeDir string
	flagLogLevel   string
	flagVerbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "tripwright",
		Short:         "Links-only travel planning agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagRuntimeDir, "runtime-dir", "", "runtime directory (default $RUNTIME_DIR or ./runtime)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (default $LOG_LEVEL or INFO)")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "echo info-level logs to stderr")

	root.AddCommand(newChatCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newExperimentsCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadSettings resolves process settings, honoring flag overrides, and
// installs the process logger.
func loadSettings() (*config.Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}

	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagRuntimeDir != "" {
		settings.RuntimeDir = flagRuntimeDir
	}
	if flagLogLevel != "" {
		settings.LogLevel = flagLogLevel
	}
	if flagVerbose {
		os.Setenv("CONSOLE_LOG_LEVEL", "INFO")
	}

	if err := os.MkdirAll(settings.RuntimeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}
	if err := telemetry.Setup(settings.RuntimeDir, settings.LogLevel); err != nil {
		return nil, err
	}
	return settings, nil
}

func historyFile(settings *config.Settings) string {
	return filepath.Join(settings.RuntimeDir, ".chat_history")
}
