package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-curator/internal/config"
	"github.com/kozaktomas/frame-curator/internal/stage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline stage status",
	Long: `List the stage status files found in the stage directory.

Each stage that ran with a marker leaves <name>.status.yaml behind with its
state (running, completed or failed), process id, and timing.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("base-dir", "./", "Pipeline base directory")
	statusCmd.Flags().String("stage-dir", "", "Stage status directory (default <base-dir>/00.scripts)")
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("base-dir") {
		cfg.Curator.BaseDir = mustGetString(cmd, "base-dir")
	}
	if cmd.Flags().Changed("stage-dir") {
		cfg.Curator.StageDir = mustGetString(cmd, "stage-dir")
	}

	statuses, err := stage.NewTracker(cfg.Curator.StagePath()).List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	if len(statuses) == 0 {
		fmt.Fprintf(out, "No stages recorded in %s\n", cfg.Curator.StagePath())
		return nil
	}
	printStatuses(out, statuses)
	return nil
}

func printStatuses(w io.Writer, statuses []stage.Status) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s\n\n", cyan(fmt.Sprintf("%d stage(s)", len(statuses))))
	for _, s := range statuses {
		fmt.Fprintf(w, "%-20s %s\n", s.Name, stateColor(s.State)(string(s.State)))
		fmt.Fprintf(w, "  %s %s\n", gray("run:    "), s.RunID)
		fmt.Fprintf(w, "  %s %d\n", gray("pid:    "), s.PID)
		fmt.Fprintf(w, "  %s %s\n", gray("started:"), s.StartedAt.Format(time.RFC3339))
		if s.FinishedAt != nil {
			fmt.Fprintf(w, "  %s %s (%s)\n", gray("finished:"), s.FinishedAt.Format(time.RFC3339),
				s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
		}
		if s.Error != "" {
			fmt.Fprintf(w, "  %s %s\n", gray("error:  "), s.Error)
		}
	}
}

func stateColor(state stage.State) func(a ...any) string {
	switch state {
	case stage.StateCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case stage.StateFailed:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgYellow).SprintFunc()
	}
}
