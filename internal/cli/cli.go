//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-retailmart.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retailmart/internal/config"
	"github.com/pgEdge/pgedge-retailmart/internal/logging"
	"github.com/pgEdge/pgedge-retailmart/internal/sources"
	"github.com/pgEdge/pgedge-retailmart/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-retailmart",
		Short: "Batch reconciliation pipeline for per-customer retail extracts",
		Long: `pgedge-retailmart merges per-customer ERP extracts (sales, returns,
deliveries, product and store masters) into a canonical PostgreSQL mart:
a daily store/product fact table, conformed dimensions, an ML feature
view and a presentation view for the evaluation app.

Each run replaces whole (customer, target date) partitions, so re-running
a day with the same input is idempotent.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-retailmart.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available source adapters",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Available sources:")
		for _, src := range sources.All() {
			cmd.Printf("  %-10s - %s\n", src.Name(), src.Description())
		}
	},
}
