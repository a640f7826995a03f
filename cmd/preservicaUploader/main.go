package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/preservicaUploader/internal/config"
	"github.com/rescp17/preservicaUploader/pkg/archive"
	"github.com/rescp17/preservicaUploader/pkg/staging"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
	"github.com/rescp17/preservicaUploader/pkg/ui"
	"github.com/rescp17/preservicaUploader/pkg/uploader"
)

type rootOptions struct {
	logFile  string
	logLevel string
	envFile  string
	update   bool
}

func main() {
	opts := &rootOptions{}
	var logCloser io.Closer
	defer func() {
		if logCloser != nil {
			if err := logCloser.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
			}
		}
	}()

	cmd := &cobra.Command{
		Use:   "preservicaUploader",
		Short: "Upload files and folders to Preservica",
		Long: "Upload files and folders to Preservica. Small files go straight to the\n" +
			"archive; large files are staged through S3 for the archive to pick up.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			closer, err := setupLogging(opts.logFile)
			if err != nil {
				return err
			}
			logCloser = closer
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.update {
				return runUpdate(cmd.OutOrStdout(), "")
			}
			return runTUI(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "debug.log", "File to write logs to")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load settings from this .env file instead of ./.env")
	cmd.Flags().BoolVarP(&opts.update, "update", "u", false, "Update the tool by pulling the latest changes from git")
	cmd.Flags().BoolVar(&opts.update, "upgrade", false, "Alias for --update")

	browseCmd := &cobra.Command{
		Use:   "browse",
		Short: "Open the interactive uploader",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}

	cmd.AddCommand(browseCmd)
	cmd.AddCommand(newUploadCmd(opts))
	cmd.AddCommand(newFoldersCmd(opts))
	cmd.AddCommand(newUpdateCmd())

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

// setupLogging routes both the standard logger and slog to path. Nothing is
// written to the terminal so the TUI stays clean.
func setupLogging(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})))
	return f, nil
}

// loadConfig reads the configuration and applies the log level.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	var files []string
	if opts.envFile != "" {
		files = append(files, opts.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = strings.ToLower(opts.logLevel)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.Info("Configuration loaded",
		"server", cfg.BaseURL(),
		"user", cfg.Username,
		"threshold_mb", cfg.ThresholdMB,
		"concurrency", cfg.Concurrency,
		"staging_backend", cfg.StagingBackend)
	return cfg, nil
}

func newClient(cfg *config.Config) *archive.Client {
	return archive.NewClient(cfg.BaseURL(), cfg.Credentials(),
		archive.WithUploadTimeout(cfg.HTTPTimeout),
		archive.WithSecurityTag(cfg.SecurityTag))
}

// stagerFactory defers building the staging client until a job needs it, so
// direct-only uploads work without a bucket.
func stagerFactory(cfg *config.Config) uploader.StagerFactory {
	return func(ctx context.Context) (transfer.Stager, error) {
		if err := cfg.RequireBucket(); err != nil {
			return nil, err
		}
		return staging.New(ctx, cfg.StagingConfig())
	}
}

func runTUI(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	app := uploader.NewApp(cfg.TransferConfig(), newClient(cfg), stagerFactory(cfg))
	p := tea.NewProgram(ui.InitialModel(app, ""), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
