package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/frame-curator/internal/constants"
	"github.com/kozaktomas/frame-curator/internal/dedup"
)

// progressObserver renders engine events: a progress bar on the progress
// writer and one "Saved:" line per accepted frame on stdout.
type progressObserver struct {
	stdout    io.Writer
	barOut    io.Writer
	outputDir string
	workers   int
	quiet     bool
	bar       *progressbar.ProgressBar
}

func newProgressObserver(stdout, barOut io.Writer, outputDir string, workers int, quiet bool) *progressObserver {
	return &progressObserver{
		stdout:    stdout,
		barOut:    barOut,
		outputDir: outputDir,
		workers:   workers,
		quiet:     quiet,
	}
}

func (o *progressObserver) OnStart(total int) {
	if o.quiet {
		return
	}
	description := "Checking frames"
	if o.workers > 1 {
		description = fmt.Sprintf("Checking frames (%d workers)", o.workers)
	}
	o.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(o.barOut),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(constants.ProgressThrottle),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (o *progressObserver) OnDecision(_, _ int, d dedup.Decision) {
	if o.quiet {
		return
	}
	if d.Outcome == dedup.OutcomeAccepted {
		if o.bar != nil {
			o.bar.Clear()
		}
		fmt.Fprintf(o.stdout, "Saved: %s\n", filepath.Join(o.outputDir, d.Name))
	}
	if o.bar != nil {
		o.bar.Add(1)
	}
}

func (o *progressObserver) OnFinish(_ dedup.Summary, _ error) {
	if o.bar == nil {
		return
	}
	o.bar.Finish()
	fmt.Fprintln(o.barOut)
}
