package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/frame-curator/internal/config"
	"github.com/kozaktomas/frame-curator/internal/constants"
	"github.com/kozaktomas/frame-curator/internal/stage"
	"github.com/kozaktomas/frame-curator/internal/telemetry"
	"github.com/kozaktomas/frame-curator/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the telemetry server",
	Long: `Start the telemetry HTTP API.

Agents post host metrics to /telemetry or /api/v1/telemetry; the latest
report per agent is kept in memory. Stage status files from the stage
directory are exposed under /api/v1/stages.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 5000, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("base-dir", "./", "Pipeline base directory")
	serveCmd.Flags().String("stage-dir", "", "Stage status directory (default <base-dir>/00.scripts)")
}

// resolveServeConfig applies explicitly set flags on top of the environment.
func resolveServeConfig(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("base-dir") {
		cfg.Curator.BaseDir = mustGetString(cmd, "base-dir")
	}
	if cmd.Flags().Changed("stage-dir") {
		cfg.Curator.StageDir = mustGetString(cmd, "stage-dir")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	resolveServeConfig(cmd, cfg)

	store := telemetry.NewStore()
	tracker := stage.NewTracker(cfg.Curator.StagePath())
	server := web.NewServer(cfg, store, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Telemetry API on http://%s:%d/api/v1\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Printf("Stage status from %s\n", tracker.Dir)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
