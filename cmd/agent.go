package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kozaktomas/frame-curator/internal/config"
	"github.com/kozaktomas/frame-curator/internal/telemetry"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Report host metrics to the telemetry server",
	Long: `Collect RAM, CPU, logged-in users and root disk usage from this host and
post them to the telemetry server, once per interval, until interrupted.
Failed posts are logged and retried on the next tick.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
	addAgentFlags(agentCmd)
}

func addAgentFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "Telemetry endpoint (default from TELEMETRY_URL, alias --server)")
	cmd.Flags().String("agent-id", "", "Agent name (default from TELEMETRY_AGENT_ID or hostname)")
	cmd.Flags().Duration("interval", 0, "Reporting interval (default from TELEMETRY_INTERVAL)")
	cmd.Flags().String("disk", "/", "Filesystem whose usage is reported")
	cmd.Flags().Bool("once", false, "Post a single report and exit")
	cmd.Flags().SetNormalizeFunc(agentFlagAliases)
}

// agentFlagAliases maps --server onto --url.
func agentFlagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "server" {
		name = "url"
	}
	return pflag.NormalizedName(name)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if url := mustGetString(cmd, "url"); url != "" {
		cfg.Telemetry.URL = url
	}
	if id := mustGetString(cmd, "agent-id"); id != "" {
		cfg.Telemetry.AgentID = id
	}
	if interval := mustGetDuration(cmd, "interval"); interval > 0 {
		cfg.Telemetry.Interval = interval
	}
	if cfg.Telemetry.URL == "" {
		return errors.New("TELEMETRY_URL environment variable or --url is required")
	}

	collector := &telemetry.HostCollector{
		AgentID:  cfg.Telemetry.AgentID,
		DiskPath: mustGetString(cmd, "disk"),
	}
	client := telemetry.NewClient(cfg.Telemetry.URL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mustGetBool(cmd, "once") {
		m, err := collector.Collect(ctx)
		if err != nil {
			return err
		}
		if err := client.Post(ctx, m); err != nil {
			return fmt.Errorf("failed to post telemetry: %w", err)
		}
		fmt.Printf("Reported %s to %s\n", m.AgentID, cfg.Telemetry.URL)
		return nil
	}

	fmt.Printf("Reporting %s to %s every %s\n", cfg.Telemetry.AgentID, cfg.Telemetry.URL, cfg.Telemetry.Interval)
	agent := &telemetry.Agent{
		Collector: collector,
		Poster:    client,
		Interval:  cfg.Telemetry.Interval,
		Logger:    log.New(os.Stderr, "agent: ", log.LstdFlags),
	}
	return agent.Run(ctx)
}
