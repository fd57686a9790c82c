package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tripwright/tripwright/pkg/agent"
	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/graph"
	"github.com/tripwright/tripwright/pkg/memory"
	"github.com/tripwright/tripwright/pkg/models"
	"github.com/tripwright/tripwright/pkg/tools"
)

const maxClarifyRounds = 3

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive travel planning session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}
}

// newRunner wires the process-lived collaborators: persistent memory,
// the default tool registry and the geocoder.
func newRunner(settings *config.Settings) (*agent.Runner, *memory.DualStore, error) {
	store, err := memory.Open(settings.MemoryPersistDir, settings.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("open memory store: %w", err)
	}
	geocoder := tools.NewGeocoder(nil)
	return &agent.Runner{
		Settings: settings,
		Memory:   store,
		Tools:    tools.NewDefaultRegistry(nil),
		Geocode:  geocoder.Geocode,
	}, store, nil
}

func runChat(ctx context.Context, settings *config.Settings, out io.Writer) error {
	runner, store, err := newRunner(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     historyFile(settings),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, "Tripwright travel planner. Describe a trip, or type 'exit'.")

	var messages []models.Message
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}

		final, err := runQuery(ctx, runner, rl, out, query, messages)
		if err != nil {
			fmt.Fprintln(out, "Run failed:", err)
			continue
		}
		messages = append(messages,
			models.Message{Role: "user", Content: query},
			models.Message{Role: "assistant", Content: final.FinalAnswer},
		)
	}
}

// runQuery drives one run to completion, looping back through the graph
// when the agent asks clarifying questions.
func runQuery(ctx context.Context, runner *agent.Runner, rl *readline.Instance, out io.Writer, query string, history []models.Message) (*models.TripState, error) {
	runID := uuid.NewString()
	run, err := runner.NewRun(runID)
	if err != nil {
		return nil, err
	}

	state := &models.TripState{
		RunID:     runID,
		UserID:    runner.Settings.UserID,
		UserQuery: query,
		Messages:  history,
	}

	onEvent := func(ev graph.Event) {
		if ev.Type == graph.EventTask {
			fmt.Fprintf(out, "  · %s\n", ev.Payload.Name)
		}
	}

	for round := 0; ; round++ {
		state, err = run.Invoke(ctx, state, onEvent)
		if err != nil {
			break
		}
		if !state.NeedsUserInput || round >= maxClarifyRounds {
			break
		}

		answers := collectAnswers(rl, out, state.ClarifyingQuestions)
		if len(answers) == 0 {
			break
		}
		state.UserQuery = state.UserQuery + "\n\nAdditional details:\n" + strings.Join(answers, "\n")
		state.NeedsUserInput = false
		state.ClarifyingQuestions = nil
		state.TerminationReason = ""
	}

	printOutcome(out, state)
	printSummary(out, run, state)
	if err != nil {
		return state, err
	}
	return state, nil
}

// collectAnswers prompts for each clarifying question. A blank answer
// skips the question; interrupting abandons the round.
func collectAnswers(rl *readline.Instance, out io.Writer, questions []string) []string {
	fmt.Fprintln(out, "I need a few details:")
	defer rl.SetPrompt("you> ")

	var answers []string
	for _, q := range questions {
		fmt.Fprintln(out, " -", q)
		rl.SetPrompt("   answer> ")
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			continue
		}
		answers = append(answers, q+" "+answer)
	}
	return answers
}

func printOutcome(out io.Writer, state *models.TripState) {
	switch {
	case state.NeedsUserInput:
		fmt.Fprintln(out, "\nStill missing details; run ended waiting for:")
		for _, q := range state.ClarifyingQuestions {
			fmt.Fprintln(out, " -", q)
		}
	case state.FinalAnswer != "":
		fmt.Fprintln(out, "\n"+state.FinalAnswer)
	default:
		fmt.Fprintln(out, "\nNo answer was produced.")
	}

	for _, w := range state.ValidationWarnings {
		fmt.Fprintln(out, "note:", w)
	}
}

func printSummary(out io.Writer, run *agent.Run, state *models.TripState) {
	record, path, err := run.Finalize(state)
	if err != nil {
		fmt.Fprintln(out, "warning: could not write metrics:", err)
		return
	}

	memHits := run.Metrics.Field("memory_retrieval_hits")
	if memHits == nil {
		memHits = 0
	}

	fmt.Fprintln(out, "\nRun summary")
	rows := [][2]string{
		{"status", fmt.Sprint(record["status"])},
		{"termination_reason", fmt.Sprint(record["termination_reason"])},
		{"total_latency_ms", fmt.Sprint(record["total_latency_ms"])},
		{"llm_calls", fmt.Sprint(run.Metrics.Counter("llm_calls"))},
		{"tool_calls", fmt.Sprint(run.Metrics.Counter("tool_calls"))},
		{"memory_hits", fmt.Sprint(memHits)},
	}
	if state.Evaluation != nil {
		rows = append(rows, [2]string{"evaluation", state.Evaluation.OverallStatus})
	}
	for _, row := range rows {
		fmt.Fprintf(out, "  %-20s %s\n", row[0], row[1])
	}
	if state.ICSPath != "" {
		fmt.Fprintln(out, "Calendar exported:", state.ICSPath)
	}
	fmt.Fprintln(out, "Metrics appended to:", path)
}
