package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/attachsort/internal/logging"
)

var (
	envFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command for the attachsort application
var rootCmd = &cobra.Command{
	Use:   "attachsort",
	Short: "Files email attachments into categorized Google Drive folders",
	Long: `attachsort scans a Gmail mailbox for attachments, uploads each new
attachment to Google Drive, extracts its text, classifies it and moves it into
a per-category folder.

It can run as:
  - An HTTP API for a browser front-end (serve)
  - A one-off run from the terminal (login, then sort)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupEnvironment(cmd)
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "attachsort version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration. A missing file is ignored.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error. Can also use LOG_LEVEL env var.")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format: text or json. Can also use LOG_FORMAT env var.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newSortCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// setupEnvironment loads the env file and installs the default logger.
// Variables already present in the process environment win over the file.
func setupEnvironment(cmd *cobra.Command) error {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := envFallback(cmd, "log-level", "LOG_LEVEL", setString(&logLevel)); err != nil {
		return err
	}
	if err := envFallback(cmd, "log-format", "LOG_FORMAT", setString(&logFormat)); err != nil {
		return err
	}

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(os.Stderr, level, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
