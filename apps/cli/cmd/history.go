package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/abdul-hamid-achik/contractspec/packages/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyDBFlag       string
	historyLimitFlag    int
	historyRunFlag      string
	historyScenarioFlag string
	historyPruneFlag    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show runs recorded with --history",
	Long: `Show runs recorded by "contractspec run --history <file>".

Examples:
  contractspec history --db runs.db
  contractspec history --db runs.db --run 6f1c...
  contractspec history --db runs.db --scenario "login user"
  contractspec history --db runs.db --prune 50`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", getEnvString("CONTRACTSPEC_HISTORY", ""), "History database file (env: CONTRACTSPEC_HISTORY)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "l", 10, "Number of entries to show")
	historyCmd.Flags().StringVar(&historyRunFlag, "run", "", "Show the scenario outcomes of one run")
	historyCmd.Flags().StringVar(&historyScenarioFlag, "scenario", "", "Show the recent outcomes of one scenario")
	historyCmd.Flags().IntVar(&historyPruneFlag, "prune", 0, "Delete all but the newest N runs")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	if historyDBFlag == "" {
		return exitWith(ExitUsageError, errors.New("--db is required"))
	}

	store, err := history.Open(historyDBFlag)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case historyPruneFlag > 0:
		n, err := store.Prune(ctx, historyPruneFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d runs\n", n)
		return nil

	case historyRunFlag != "":
		run, err := store.Run(ctx, historyRunFlag)
		if err != nil {
			return err
		}
		outcomes, err := store.Outcomes(ctx, run.ID)
		if err != nil {
			return err
		}
		printRun(out, run)
		printOutcomes(out, outcomes, false)
		return nil

	case historyScenarioFlag != "":
		outcomes, err := store.ScenarioHistory(ctx, historyScenarioFlag, historyLimitFlag)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			fmt.Fprintf(out, "No recorded outcomes for %q\n", historyScenarioFlag)
			return nil
		}
		printOutcomes(out, outcomes, true)
		return nil
	}

	runs, err := store.Runs(ctx, historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	for _, run := range runs {
		printRun(out, run)
	}
	return nil
}

func printRun(w io.Writer, run *history.Run) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	status := green("ok")
	if run.Failed > 0 {
		status = red("failed")
	}
	fmt.Fprintf(w, "%s  %s  %-6s %s  passed %d, failed %d, skipped %d  (%dms, p95 %dms)\n",
		run.StartedAt.Format("2006-01-02 15:04:05"), run.ID, status, run.Source,
		run.Passed, run.Failed, run.Skipped, run.Duration.Milliseconds(), run.P95.Milliseconds())
}

func printOutcomes(w io.Writer, outcomes []*history.Outcome, withRun bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, o := range outcomes {
		var mark string
		switch o.Outcome {
		case "passed":
			mark = green("✓")
		case "failed":
			mark = red("✗")
		default:
			mark = yellow("-")
		}
		prefix := "  "
		if withRun {
			prefix = "  " + o.RunID + "  "
		}
		fmt.Fprintf(w, "%s%s %s", prefix, mark, o.Scenario)
		if o.Status > 0 {
			fmt.Fprintf(w, " [%d]", o.Status)
		}
		if o.Reason != "" {
			fmt.Fprintf(w, " (%s)", o.Reason)
		}
		fmt.Fprintln(w)
	}
}
