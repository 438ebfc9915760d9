// Package main provides the tab capture collector CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tabsdeclutter/tabs-declutter/internal/collector"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configPath string
	cfg        *collector.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Capture open browser tabs into Tabs Declutter",
		Long: `Collector enumerates the open tabs of a running Chromium browser
(started with --remote-debugging-port) and submits them to a Tabs Declutter
server as one capture session.

Configure the server address and API key in the YAML config file or via
DECLUTTER_API_URL / DECLUTTER_API_KEY.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = collector.LoadConfig(configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.LogFile)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", collector.DefaultConfigPath(), "path to collector config file")

	rootCmd.AddCommand(captureCmd(), statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func captureCmd() *cobra.Command {
	var current bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture open tabs into a new session",
		Long: `Capture every eligible open tab (or only the current tab with
--current) into a new capture session on the server. Internal browser pages
(chrome://, about:, extension pages, ...) are never captured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			mode := collector.ModeAll
			if current {
				mode = collector.ModeCurrent
			}

			c := collector.New(
				collector.NewBrowserSource(cfg.CDPURL()),
				collector.NewClient(cfg.APIURL, cfg.APIKey),
				collector.NewStateFile(cfg.StateFile),
				cfg.InternalPrefixes,
			)

			result, err := c.Run(cmd.Context(), mode)
			if errors.Is(err, collector.ErrNoEligibleTabs) {
				return fmt.Errorf("no valid tabs to capture")
			}
			if errors.Is(err, collector.ErrTransport) {
				return fmt.Errorf("could not reach %s: %w", cfg.APIURL, err)
			}
			if err != nil {
				return err
			}

			switch {
			case result.Failed():
				fmt.Printf("Captured 0 of %d tabs (session %s)\n", result.Submitted, result.SessionID)
				printItemErrors(result.Errors)
				return fmt.Errorf("no tabs were stored")
			case result.Partial():
				fmt.Printf("Captured %d of %d tabs (session %s)\n", result.Captured, result.Submitted, result.SessionID)
				printItemErrors(result.Errors)
				return nil
			default:
				fmt.Printf("Captured %d tabs (session %s)\n", result.Captured, result.SessionID)
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&current, "current", false, "capture only the current tab")

	return cmd
}

func printItemErrors(errs []collector.ItemError) {
	for _, e := range errs {
		fmt.Printf("  failed: %s: %s\n", e.URL, e.Error)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := collector.NewStateFile(cfg.StateFile).Load()
			if err != nil {
				return err
			}
			if state.LastCaptureAt.IsZero() {
				fmt.Println("No captures yet")
				return nil
			}
			fmt.Printf("Last capture: %s (%d tabs)\n",
				state.LastCaptureAt.Format(time.RFC1123), state.LastCaptureCount)
			return nil
		},
	}
}

func setupLogger(logFile string) {
	var out io.Writer = os.Stderr
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    25,
				MaxBackups: 10,
				MaxAge:     14,
				Compress:   true,
			})
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})))
}
