package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kozaktomas/frame-curator/internal/config"
	"github.com/kozaktomas/frame-curator/internal/constants"
	"github.com/kozaktomas/frame-curator/internal/dedup"
	"github.com/kozaktomas/frame-curator/internal/quality"
	"github.com/kozaktomas/frame-curator/internal/sink"
	"github.com/kozaktomas/frame-curator/internal/source"
	"github.com/kozaktomas/frame-curator/internal/stage"
)

var dedupCmd = &cobra.Command{
	Use:     "dedup",
	Aliases: []string{"quality-check"},
	Short:   "Drop near-duplicate and low-detail frames",
	Long: `Process every JPEG and PNG frame of the input directory in filename order.

A frame is dropped as a duplicate when its SSIM against any previously kept
frame is above --ssim. Otherwise it is dropped as low detail unless its Canny
edge pixel count is above --edge. Surviving frames are copied byte for byte to
the output directory. Unreadable frames are reported and skipped.

Examples:
  # Use the default pipeline layout under the current directory
  frame-curator dedup

  # Explicit directories with a looser duplicate threshold
  frame-curator dedup --input ./frames --output ./kept --ssim 0.9

  # Write a machine-readable report
  frame-curator dedup --base-dir /data/ep01 --report /data/ep01/quality.json`,
	Args: cobra.NoArgs,
	RunE: runDedup,
}

func init() {
	rootCmd.AddCommand(dedupCmd)
	addDedupFlags(dedupCmd)
}

func addDedupFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-dir", "./", "Pipeline base directory holding the stage subdirectories")
	cmd.Flags().String("input", "", "Input directory (default <base-dir>/5.quali_input)")
	cmd.Flags().String("output", "", "Output directory (default <base-dir>/6.quali_output)")
	cmd.Flags().String("stage-dir", "", "Stage status directory (default <base-dir>/00.scripts)")
	cmd.Flags().Float64("ssim", 0.95, "Similarity above which a frame is a duplicate, in (0, 1]")
	cmd.Flags().Int("edge", 100, "Edge pixel count a frame must exceed to be kept")
	cmd.Flags().Int("workers", 1, "Parallel SSIM comparisons per frame")
	cmd.Flags().String("report", "", "Write the JSON run report to this file")
	cmd.Flags().Bool("json", false, "Print the JSON run report to stdout instead of progress and summary")
	cmd.Flags().Bool("no-marker", false, "Do not write stage status files")
}

// applyDedupFlags overrides configuration with explicitly set flags.
func applyDedupFlags(cmd *cobra.Command, cur *config.CuratorConfig) {
	flags := cmd.Flags()
	if flags.Changed("base-dir") {
		cur.BaseDir = mustGetString(cmd, "base-dir")
	}
	if flags.Changed("input") {
		cur.InputDir = mustGetString(cmd, "input")
	}
	if flags.Changed("output") {
		cur.OutputDir = mustGetString(cmd, "output")
	}
	if flags.Changed("stage-dir") {
		cur.StageDir = mustGetString(cmd, "stage-dir")
	}
	if flags.Changed("ssim") {
		cur.SimilarityThreshold = mustGetFloat64(cmd, "ssim")
	}
	if flags.Changed("edge") {
		cur.EdgeThreshold = mustGetInt(cmd, "edge")
	}
	if flags.Changed("workers") {
		cur.Workers = mustGetInt(cmd, "workers")
	}
}

func runDedup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyDedupFlags(cmd, &cfg.Curator)
	if err := cfg.Validate(); err != nil {
		return err
	}

	reportPath := mustGetString(cmd, "report")
	jsonOutput := mustGetBool(cmd, "json")
	noMarker := mustGetBool(cmd, "no-marker")
	stdout := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *dedup.Report
	work := func() error {
		var runErr error
		report, runErr = executeDedup(ctx, &cfg.Curator, stdout, cmd.ErrOrStderr(), jsonOutput)
		return runErr
	}

	var runErr error
	if noMarker {
		runErr = work()
	} else {
		stageName := cfg.Curator.StageName
		if stageName == "" {
			stageName = constants.DefaultStageName
		}
		runErr = stage.NewTracker(cfg.Curator.StagePath()).Run(stageName, work)
	}

	if report != nil {
		if reportPath != "" {
			if err := report.WriteFile(reportPath); err != nil {
				return err
			}
		}
		if jsonOutput {
			data, err := report.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, string(data))
		} else {
			printSummary(stdout, report)
		}
	}
	return runErr
}

// executeDedup wires the pipeline components and runs the engine once.
func executeDedup(ctx context.Context, cur *config.CuratorConfig, stdout, progressOut io.Writer, quiet bool) (*dedup.Report, error) {
	input, output := cur.InputPath(), cur.OutputPath()

	out, err := sink.NewDir(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dedup.ErrResource, err)
	}

	scorer := quality.NewSSIM()
	scorer.Window = cur.SSIMWindow
	detector := quality.NewCanny(cur.CannyLow, cur.CannyHigh)

	observer := newProgressObserver(stdout, progressOut, out.Path(), cur.Workers, quiet)
	engine, err := dedup.New(cur.Thresholds(), scorer, detector, out,
		dedup.WithObserver(observer),
		dedup.WithWorkers(cur.Workers),
	)
	if err != nil {
		return nil, err
	}

	report, err := engine.Run(ctx, source.New(input))
	report.Input = input
	report.Output = output
	return report, err
}

func printSummary(w io.Writer, r *dedup.Report) {
	p := message.NewPrinter(language.English)
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	s := r.Summary
	fmt.Fprintf(w, "\n%s\n", bold("Quality check summary"))
	fmt.Fprintf(w, "  Input:       %s\n", r.Input)
	fmt.Fprintf(w, "  Output:      %s\n", r.Output)
	fmt.Fprintf(w, "  Thresholds:  ssim > %v, edges > %d\n", r.Thresholds.Similarity, r.Thresholds.Edge)
	fmt.Fprintf(w, "  Processed:   %s\n", p.Sprintf("%d", s.Total()))
	fmt.Fprintf(w, "  Kept:        %s\n", green(p.Sprintf("%d", s.Accepted)))
	fmt.Fprintf(w, "  Duplicates:  %s\n", yellow(p.Sprintf("%d", s.Duplicates)))
	fmt.Fprintf(w, "  Low detail:  %s\n", yellow(p.Sprintf("%d", s.LowDetail)))
	if s.Errors > 0 {
		fmt.Fprintf(w, "  Errors:      %s\n", red(p.Sprintf("%d", s.Errors)))
		for _, d := range r.Decisions {
			if d.Outcome == dedup.OutcomeError {
				fmt.Fprintf(w, "    %s %s\n", d.Name, gray(d.Err))
			}
		}
	}
	fmt.Fprintf(w, "  Duration:    %s\n", r.Duration().Round(time.Millisecond))
}
