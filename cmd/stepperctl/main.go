package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/stepperctl/internal/config"
	"codeberg.org/mutker/stepperctl/internal/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "stepperctl",
		Short: "Stepper motor telemetry acquisition and characterization",
		Long: `Samples encoder and driver telemetry of up to two stepper motors,
enforces a per-motor safety envelope, and records characterization runs
into an archive that can be exported as JSON.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(config.WithFlags(cmd.Flags()))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			level, err := logger.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger.Init(level, logger.IsService())
			logger.Debug().Str("backend", cfg.Hardware.Backend).Msg("Config loaded")

			return nil
		},
	}

	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(ctx, cancel)

	return ctx, cancel
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}
