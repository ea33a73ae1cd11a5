package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	url        string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "mmate-producer",
		Short: "Validate and call declared RabbitMQ producer clients",
		Long: `mmate-producer loads producer client declarations from a YAML file.
It can compile them offline, send a single call through the broker, or report connection health.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "producers.yaml", "Producer configuration file")
	rootCmd.PersistentFlags().StringVarP(&flags.url, "url", "u", "", "RabbitMQ connection URL, overrides the configuration")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newValidateCmd(flags),
		newCallCmd(flags),
		newHealthCmd(flags),
	)
	return rootCmd
}

func (f *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
