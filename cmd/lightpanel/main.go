// Lightpanel is a Telegram bot that controls Philips Hue lights through an
// interactive inline-keyboard panel.
//
// Usage:
//
//	lightpanel [serve] [-c config.yaml]    run the bot
//	lightpanel rooms [-c config.yaml]      print the resolved rooms
//	lightpanel discover [--timeout 5s]     find Hue bridges on the local network
//	lightpanel journal [-c config.yaml]    show recent panel activity
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dokzlo13/lightpanel/internal/app"
	"github.com/dokzlo13/lightpanel/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lightpanel",
	Short: "Telegram control panel for Philips Hue lights",
	Long: `Lightpanel answers a chat command with an inline-keyboard panel that shows
every configured room and lets anyone in the chat switch, dim and colour its lights.

Open panels refresh themselves and disappear after a period of inactivity.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().Str("config", configPath).Msg("Starting lightpanel")

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	// Create application
	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Start the application
	if err := application.Start(ctx); err != nil {
		application.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown
	application.Wait()

	// Graceful shutdown
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	return nil
}

// loadConfig reads the config file and sets up logging from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stderr
	if !cfg.UseJSON {
		console = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !cfg.Colors,
		}
	}

	out := console
	if cfg.File != "" {
		// the file always gets JSON lines
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	switch cfg.GetLevel() {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
