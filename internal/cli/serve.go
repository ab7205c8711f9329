package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tgrelay/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay bot",
		Long: `Run the relay bot.

The bot long-polls Telegram for updates, relays user messages and /req
requests to the administrator and delivers the administrator's replies.
It stops on SIGINT or SIGTERM after draining queued deliveries.`,
		Example: `  # Run with ~/.tgrelay/config.yaml
  tgrelay serve

  # Token and admin from the environment
  TGRELAY_TELEGRAM_TOKEN=123:abc TGRELAY_ADMIN_ID=42 tgrelay serve

  # Expose /healthz and /status
  tgrelay serve --status --status-port 8089`,
		RunE: runServe,
	}

	cmd.Flags().Int64("admin-id", 0, "administrator chat id (overrides config)")
	cmd.Flags().Int("workers", 0, "number of delivery workers (overrides config)")
	cmd.Flags().Bool("status", false, "enable the status HTTP endpoint")
	cmd.Flags().Int("status-port", 0, "status endpoint port (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errNoContext
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	// Override config with flags if provided
	if id, _ := cmd.Flags().GetInt64("admin-id"); id != 0 {
		cfg.AdminID = id
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		cfg.Relay.Workers = n
	}
	if on, _ := cmd.Flags().GetBool("status"); on {
		cfg.Status.Enabled = true
	}
	if port, _ := cmd.Flags().GetInt("status-port"); port > 0 {
		cfg.Status.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("Starting tgrelay...")

	app, err := server.New(ctx, server.Options{
		Config:  cfg,
		Version: Version,
		Logger:  *log,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("relay stopped with error")
		return err
	}
	return nil
}
