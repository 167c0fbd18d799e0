//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retailmart/internal/db"
	"github.com/pgEdge/pgedge-retailmart/internal/logging"
	"github.com/pgEdge/pgedge-retailmart/internal/sources/demo"
	"github.com/pgEdge/pgedge-retailmart/internal/store"
)

var (
	initDropExisting bool
	initSeed         bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the mart schema",
	Long: `Initialize a PostgreSQL database with the mart schema: identity
mapping tables, the daily fact table, dimensions, the two view tables
and pipeline bookkeeping.

Example:
  pgedge-retailmart init --seed --connection "postgres://..."`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing schema before initialization")
	initCmd.Flags().BoolVar(&initSeed, "seed", false,
		"seed identity mappings for the demo customers")
}

func runInit(cmd *cobra.Command, args []string) error {
	if initDropExisting {
		cfg.Init.DropExisting = true
	}
	if initSeed {
		cfg.Init.Seed = true
	}

	if err := cfg.ValidateInit(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if cfg.Init.DropExisting {
		logging.Info().Msg("Dropping existing schema")
		if err := store.DropSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	logging.Info().Msg("Creating schema")
	if err := store.CreateSchema(ctx, pool); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if cfg.Init.Seed {
		products, stores := demo.SeedMappings()
		logging.Info().
			Int("products", len(products)).
			Int("stores", len(stores)).
			Msg("Seeding demo identity mappings")
		if err := store.New(pool).SeedMappings(ctx, products, stores); err != nil {
			return fmt.Errorf("failed to seed mappings: %w", err)
		}
	}

	if err := store.SaveMetadata(ctx, pool); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	logging.Info().Msg("Mart initialization complete")
	return nil
}
