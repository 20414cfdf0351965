package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tradegate/internal/config"
	"tradegate/internal/server"
	"tradegate/pkg/logging"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath specifies a custom configuration directory path.
// When empty, the per-user default (~/.config/tradegate) is used.
var serveConfigPath string

// serveCmd starts the tradegate server: the authorization endpoints and
// the MCP streamable HTTP transport.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tradegate server",
	Long: `Starts the tradegate server.

The server mounts the authorization endpoints (/auth/initiate,
/auth/approve, /auth/callback) and the MCP streamable HTTP transport
(/mcp). Tool-calling clients connect to /mcp; each session gets its own
brokerage connection backed by the stored credential.

Configuration:
  tradegate loads config.yaml from the configuration directory
  (default: ~/.config/tradegate). The state-token signing secret and the
  brokerage client secret may be supplied via TRADEGATE_STATE_SECRET and
  TRADEGATE_BROKER_CLIENT_SECRET instead of the file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath := serveConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return err
		}
	}

	bootLevel := slog.LevelInfo
	if serveDebug {
		bootLevel = slog.LevelDebug
	}
	bootLogger := logging.New(bootLevel, os.Stderr)

	cfg, err := config.LoadConfig(configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveDebug {
		cfg.Server.LogLevel = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(level, os.Stderr)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
}
