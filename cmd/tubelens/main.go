package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tubelens/tubelens/internal/app"
	"github.com/tubelens/tubelens/internal/config"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "tubelens",
		Short:   "YouTube channel dashboard backend",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	configPath := config.DefaultConfigPath
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.RunServer(ctx, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", configPath, "path to config file")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	configPath := config.DefaultConfigPath
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", configPath, "path to config file")
	return cmd
}
