package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "receptionist-admin",
		Short:         "Operate the receptionist service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(
		buildContactsCmd(),
		buildEmailsCmd(),
		buildSweepCmd(),
		buildPolicyCmd(),
		buildBusinessCmd(),
		buildCalendarCmd(),
		buildStatsCmd(),
	)
	return rootCmd
}

// loadConfig reads the same environment as the server
func loadConfig() *config.ReceptionistConfig {
	return config.LoadReceptionistConfig()
}
