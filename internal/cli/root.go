package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/suzieq/ceo-office/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/suzieq/ceo-office/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"  ____               _       ___\n" +
		" / ___| _   _ _____(_) ___ / _ \\\n" +
		" \\___ \\| | | |_  /| |/ _ \\ | | |\n" +
		"  ___) | |_| |/ / | |  __/ |_| |\n" +
		" |____/ \\__,_/___||_|\\___|\\__\\_\\\n"
)

var rootCmd = &cobra.Command{
	Use:   "suzieq",
	Short: "Suzie Q - CEO agent office",
	Long:  color.CyanString(logo) + "\nA webhook-driven office of LLM agents with ranked long-term memory.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(hireCmd)
	rootCmd.AddCommand(fireCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(kpiCmd)
	rootCmd.AddCommand(rndCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging installs the default slog handler.
func setupLogging(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func logWriter() io.Writer { return os.Stderr }
