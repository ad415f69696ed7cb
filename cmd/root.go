package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "frame-curator",
	Short: "Offline dedup and quality gating for extracted video frames",
	Long: `Frame Curator is the quality-check stage of a frame extraction pipeline.
It drops near-duplicate frames using structural similarity, drops frames
without enough edge detail, and copies the survivors to the output directory.
It also ships a small telemetry server and agent for the pipeline's workers.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
