package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tripwright/tripwright/pkg/telemetry"
)

func newReportCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the failure report for a run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			return runReport(settings.RuntimeDir, runID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (default: most recent run with failures)")
	return cmd
}

func runReport(runtimeDir, runID string, out io.Writer) error {
	path, err := failureLogFor(runtimeDir, runID)
	if err != nil {
		return err
	}

	records, err := readFailureRecords(path)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No failures recorded in", path)
		return nil
	}

	fmt.Fprintf(out, "Failure report for run %s (%d failures)\n\n", records[0].RunID, len(records))

	fmt.Fprintln(out, "Timeline:")
	for i, rec := range records {
		recovered := ""
		if rec.WasRecovered {
			recovered = fmt.Sprintf(" [recovered: %s]", rec.RecoveryAction)
		}
		tool := ""
		if rec.ToolName != "" {
			tool = " tool=" + rec.ToolName
		}
		fmt.Fprintf(out, "  %2d. %s  %s/%s  node=%s%s  %s: %s%s\n",
			i+1, rec.Timestamp, rec.Category, rec.Severity, rec.GraphNode, tool,
			rec.ErrorType, rec.ErrorMessage, recovered)
	}

	byCategory := map[string]int{}
	bySeverity := map[string]int{}
	recovered := 0
	for _, rec := range records {
		byCategory[string(rec.Category)]++
		bySeverity[string(rec.Severity)]++
		if rec.WasRecovered {
			recovered++
		}
	}

	fmt.Fprintln(out, "\nBy category:")
	for _, k := range sortedCountKeys(byCategory) {
		fmt.Fprintf(out, "  %-12s %d\n", k, byCategory[k])
	}
	fmt.Fprintln(out, "By severity:")
	for _, k := range sortedCountKeys(bySeverity) {
		fmt.Fprintf(out, "  %-12s %d\n", k, bySeverity[k])
	}
	fmt.Fprintf(out, "Recovery rate: %.0f%%\n", 100*float64(recovered)/float64(len(records)))
	return nil
}

// failureLogFor resolves the failure log path: the named run's file, or
// the newest failures_*.jsonl when no run id is given.
func failureLogFor(runtimeDir, runID string) (string, error) {
	logsDir := filepath.Join(runtimeDir, "logs")
	if runID != "" {
		path := filepath.Join(logsDir, fmt.Sprintf("failures_%s.jsonl", runID))
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("no failure log for run %s: %w", runID, err)
		}
		return path, nil
	}

	matches, err := filepath.Glob(filepath.Join(logsDir, "failures_*.jsonl"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no failure logs under %s", logsDir)
	}
	sort.Slice(matches, func(i, j int) bool {
		fi, errI := os.Stat(matches[i])
		fj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return matches[i] < matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return matches[0], nil
}

func readFailureRecords(path string) ([]telemetry.FailureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []telemetry.FailureRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec telemetry.FailureRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
