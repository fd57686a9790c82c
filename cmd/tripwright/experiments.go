package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tripwright/tripwright/pkg/chaos"
	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/models"
)

func newExperimentsCmd() *cobra.Command {
	var scenarioFile string
	cmd := &cobra.Command{
		Use:   "experiments",
		Short: "Run the telemetry comparison sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			scenario := config.DefaultScenario()
			if scenarioFile != "" {
				scenario, err = config.LoadScenario(scenarioFile)
				if err != nil {
					return err
				}
			}
			return runExperiments(cmd.Context(), settings, scenario, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&scenarioFile, "scenarios", "", "scenario YAML file (default: built-in sweep)")
	return cmd
}

// runExperiments executes every scenario query under every telemetry
// mode. Scenario faults and per-tool chaos apply on the final (selective)
// pass so the sweep contrasts clean and degraded runs.
func runExperiments(ctx context.Context, settings *config.Settings, scenario *config.Scenario, out io.Writer) error {
	csvPath := filepath.Join(settings.RuntimeDir, "experiment_results.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("create results file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"mode", "query", "latency_ms", "log_size_bytes", "success"}); err != nil {
		return err
	}

	fmt.Fprintf(out, "Scenario: %s (%d modes x %d queries)\n", scenario.Name, len(scenario.Modes), len(scenario.Queries))

	for i, mode := range scenario.Modes {
		faulted := i == len(scenario.Modes)-1
		for _, query := range scenario.Queries {
			row, err := runExperiment(ctx, settings, scenario, mode, query, faulted)
			if err != nil {
				fmt.Fprintf(out, "  %-10s %-50.50s ERROR %v\n", mode, query, err)
				row = []string{mode, query, "0", "0", "false"}
			} else {
				fmt.Fprintf(out, "  %-10s %-50.50s %sms log=%sB ok=%s\n", mode, query, row[2], row[3], row[4])
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	fmt.Fprintln(out, "Results written to:", csvPath)
	return w.Error()
}

func runExperiment(ctx context.Context, base *config.Settings, scenario *config.Scenario, mode, query string, faulted bool) ([]string, error) {
	settings := *base
	settings.TelemetryMode = mode
	if faulted {
		settings.SimulateToolTimeout = scenario.Faults.ToolTimeout
		settings.SimulateToolError = scenario.Faults.ToolError
		settings.SimulateBadRetrieval = scenario.Faults.BadRetrieval
		settings.SimulateLLMError = scenario.Faults.LLMError
		if scenario.Faults.Seed != 0 {
			settings.FailureSeed = scenario.Faults.Seed
		}
	}

	runner, store, err := newRunner(&settings)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	runID := uuid.NewString()
	run, err := runner.NewRun(runID)
	if err != nil {
		return nil, err
	}
	if faulted && len(scenario.Tools) > 0 {
		run.Deps.Tools = chaos.Wrap(run.Deps.Tools, scenario.Tools, settings.FailureSeed, run.Tracker)
	}

	traceBefore := fileSize(run.Controller.TracePath())

	state := &models.TripState{RunID: runID, UserID: settings.UserID, UserQuery: query}
	state, invokeErr := run.Invoke(ctx, state, nil)

	record, _, finErr := run.Finalize(state)
	if finErr != nil {
		return nil, finErr
	}

	logSize := fileSize(run.Controller.TracePath()) - traceBefore
	logSize += fileSize(run.Tracker.CombinedLogPath())
	logSize += fileSize(run.Tracker.FailureLogPath())

	latency := fmt.Sprint(record["total_latency_ms"])
	success := invokeErr == nil &&
		state.TerminationReason != models.TerminationError &&
		!state.NeedsUserInput &&
		state.FinalAnswer != ""

	return []string{mode, query, latency, strconv.FormatInt(logSize, 10), strconv.FormatBool(success)}, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
