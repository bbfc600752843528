package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/stay-booking-payments/internal/config"
	"github.com/iliyamo/stay-booking-payments/internal/logging"
)

var Version = "dev"

func main() {
	config.LoadDotenv()

	rootCmd := &cobra.Command{
		Use:           "stays",
		Short:         "Property booking API with gateway-backed payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(deliverCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from APP_ENV and LOG_LEVEL without
// requiring the rest of the configuration.
func newLogger() zerolog.Logger {
	return logging.New(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}
