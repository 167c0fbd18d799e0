//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-retailmart/internal/logging"
	"github.com/pgEdge/pgedge-retailmart/pkg/version"
)

// SaveMetadata records schema initialization in the metadata table.
func SaveMetadata(ctx context.Context, pool *pgxpool.Pool) error {
	metadata := map[string]string{
		"version":        version.Short(),
		"initialized_at": time.Now().UTC().Format(time.RFC3339),
	}

	for key, value := range metadata {
		_, err := pool.Exec(ctx, `
            INSERT INTO retailmart_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, key, value)
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	logging.Debug().Msg("Saved metadata")
	return nil
}

// GetMetadataValue retrieves a single metadata value by key.
func GetMetadataValue(ctx context.Context, pool *pgxpool.Pool, key string) (string, error) {
	var value string
	err := pool.QueryRow(ctx, `
        SELECT value FROM retailmart_metadata WHERE key = $1
    `, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SaveRunMetadata records the most recent pipeline run per customer.
func SaveRunMetadata(ctx context.Context, pool *pgxpool.Pool, customerID, runID string) error {
	_, err := pool.Exec(ctx, `
        INSERT INTO retailmart_metadata (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
    `, "last_run:"+customerID, runID+"@"+time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save run metadata: %w", err)
	}
	return nil
}
