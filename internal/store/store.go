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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/assemble"
	"github.com/pgEdge/pgedge-retailmart/internal/identity"
	"github.com/pgEdge/pgedge-retailmart/internal/logging"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
	"github.com/pgEdge/pgedge-retailmart/internal/views"
)

// Store is the pipeline's view of the persistent mart.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadSnapshot reads one customer's identity mappings as an immutable
// snapshot. Mapping updates happen out-of-band and never concurrently
// with a run for the same customer.
func (s *Store) LoadSnapshot(ctx context.Context, customerID string) (*identity.Snapshot, error) {
	products, err := s.loadMappings(ctx, customerID,
		`SELECT number_product, id_product FROM id_map_product WHERE customer_id = $1`)
	if err != nil {
		return nil, fmt.Errorf("load product mappings: %w", err)
	}
	stores, err := s.loadMappings(ctx, customerID,
		`SELECT number_store, id_store FROM id_map_store WHERE customer_id = $1`)
	if err != nil {
		return nil, fmt.Errorf("load store mappings: %w", err)
	}
	return identity.NewSnapshot(customerID, products, stores)
}

func (s *Store) loadMappings(ctx context.Context, customerID, query string) ([]identity.Mapping, error) {
	rows, err := s.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Mapping
	for rows.Next() {
		m := identity.Mapping{CustomerID: customerID}
		if err := rows.Scan(&m.NumberLocal, &m.IDGlobal); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SeedMappings inserts identity mappings, skipping entries that already
// exist. Used by init --seed for the demo customers.
func (s *Store) SeedMappings(ctx context.Context, products, stores []identity.Mapping) error {
	for _, m := range products {
		_, err := s.pool.Exec(ctx, `
            INSERT INTO id_map_product (customer_id, number_product, id_product)
            VALUES ($1, $2, $3)
            ON CONFLICT (customer_id, number_product) DO NOTHING
        `, m.CustomerID, m.NumberLocal, m.IDGlobal)
		if err != nil {
			return fmt.Errorf("seed product mapping: %w", err)
		}
	}
	for _, m := range stores {
		_, err := s.pool.Exec(ctx, `
            INSERT INTO id_map_store (customer_id, number_store, id_store)
            VALUES ($1, $2, $3)
            ON CONFLICT (customer_id, number_store) DO NOTHING
        `, m.CustomerID, m.NumberLocal, m.IDGlobal)
		if err != nil {
			return fmt.Errorf("seed store mapping: %w", err)
		}
	}
	return nil
}

// LoadCarryState seeds a run starting at `from`: for each pair, the
// most recent stored snapshot dated strictly before `from`. Snapshots
// on or after `from` belong to days the run is about to replay and are
// ignored, so replaying a day never applies its deltas twice.
func (s *Store) LoadCarryState(ctx context.Context, customerID string, from time.Time) (*assemble.CarryState, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DISTINCT ON (id_product, id_store)
            id_product, id_store, price, virtual_stock, observed_days
        FROM pipeline_carry_state
        WHERE customer_id = $1 AND as_of_date < $2
        ORDER BY id_product, id_store, as_of_date DESC
    `, customerID, from)
	if err != nil {
		return nil, fmt.Errorf("load carry state: %w", err)
	}
	defer rows.Close()

	state := assemble.NewCarryState()
	for rows.Next() {
		var (
			pair         model.PairKey
			price        decimal.NullDecimal
			virtualStock decimal.NullDecimal
			observed     int
		)
		if err := rows.Scan(&pair.IDProduct, &pair.IDStore, &price, &virtualStock, &observed); err != nil {
			return nil, fmt.Errorf("scan carry state: %w", err)
		}
		if price.Valid {
			state.Price[pair] = price.Decimal
		}
		if virtualStock.Valid {
			state.VirtualStock[pair] = virtualStock.Decimal
		}
		state.ObservedDays[pair] = observed
	}
	return state, rows.Err()
}

// SaveCarryState replaces one customer's carry snapshots inside the run
// window with the run's per-day snapshots. Snapshots outside the window
// are untouched; they still seed replays of other days.
func (s *Store) SaveCarryState(ctx context.Context, customerID string, from, to time.Time,
	snapshots map[time.Time]*assemble.CarryState) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin carry state transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM pipeline_carry_state WHERE customer_id = $1 AND as_of_date BETWEEN $2 AND $3`,
		customerID, from, to); err != nil {
		return fmt.Errorf("clear carry state: %w", err)
	}

	for day, state := range snapshots {
		pairs := make(map[model.PairKey]bool)
		for p := range state.Price {
			pairs[p] = true
		}
		for p := range state.VirtualStock {
			pairs[p] = true
		}
		for p := range state.ObservedDays {
			pairs[p] = true
		}

		for pair := range pairs {
			var price, virtualStock decimal.NullDecimal
			if v, ok := state.Price[pair]; ok {
				price = decimal.NewNullDecimal(v)
			}
			if v, ok := state.VirtualStock[pair]; ok {
				virtualStock = decimal.NewNullDecimal(v)
			}
			_, err := tx.Exec(ctx, `
	            INSERT INTO pipeline_carry_state (customer_id, id_product, id_store, as_of_date, price, virtual_stock, observed_days)
	            VALUES ($1, $2, $3, $4, $5, $6, $7)
	        `, customerID, pair.IDProduct, pair.IDStore, day, price, virtualStock, state.ObservedDays[pair])
			if err != nil {
				return fmt.Errorf("insert carry state: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit carry state: %w", err)
	}
	return nil
}

// ReplacePartition atomically replaces one (customer, target_date)
// partition of the fact table and both materialized views:
// delete-then-insert in a single transaction, never a row-level upsert.
// Re-running with identical input leaves the partition bit-identical.
func (s *Store) ReplacePartition(ctx context.Context, part model.Partition,
	facts []model.FactRow, features []views.FeatureRow, app []views.AppRow) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin partition transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{"fact_daily_store_product", "view_features_ml_daily", "view_app_daily"} {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE customer_id = $1 AND target_date = $2", table),
			part.CustomerID, part.TargetDate); err != nil {
			return fmt.Errorf("clear partition %s in %s: %w", part, table, err)
		}
	}

	if len(facts) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"fact_daily_store_product"},
			[]string{"customer_id", "id_product", "id_store", "target_date",
				"sales_qty", "return_qty", "delivery_qty", "stockout", "price"},
			pgx.CopyFromSlice(len(facts), func(i int) ([]any, error) {
				f := facts[i]
				return []any{f.CustomerID, f.IDProduct, f.IDStore, f.TargetDate,
					f.SalesQty, f.ReturnQty, f.DeliveryQty, f.Stockout, f.Price}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy facts for partition %s: %w", part, err)
		}
	}

	if len(features) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"view_features_ml_daily"},
			[]string{"customer_id", "id_product", "id_store", "target_date",
				"sales_qty", "stockout", "lag_sales_1", "lag_sales_7", "sales_avg_7", "dow", "month"},
			pgx.CopyFromSlice(len(features), func(i int) ([]any, error) {
				f := features[i]
				return []any{part.CustomerID, f.IDProduct, f.IDStore, f.TargetDate,
					f.SalesQty, f.Stockout, f.Lags[1], f.Lags[7], f.Rolling,
					f.DayOfWeek, f.Month}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy features for partition %s: %w", part, err)
		}
	}

	if len(app) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"view_app_daily"},
			[]string{"customer_id", "id_product", "id_store", "target_date",
				"sales_qty", "return_qty", "delivery_qty", "stockout", "price",
				"product_name", "number_product", "moq", "number_store", "store_name", "store_address"},
			pgx.CopyFromSlice(len(app), func(i int) ([]any, error) {
				r := app[i]
				return []any{part.CustomerID, r.IDProduct, r.IDStore, r.TargetDate,
					r.SalesQty, r.ReturnQty, r.DeliveryQty, r.Stockout, r.Price,
					r.ProductName, r.NumberProduct, r.MOQ,
					r.NumberStore, r.StoreName, r.StoreAddress}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy app view for partition %s: %w", part, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit partition %s: %w", part, err)
	}

	logging.Debug().
		Str("partition", part.String()).
		Int("facts", len(facts)).
		Msg("Replaced partition")
	return nil
}

// UpsertDimensions writes the conformed dimensions, one current row per
// global id, last write wins.
func (s *Store) UpsertDimensions(ctx context.Context, products []model.DimProduct, stores []model.DimStore) error {
	for _, p := range products {
		_, err := s.pool.Exec(ctx, `
            INSERT INTO dim_product (id_product, product_name, number_product, product_group, moq, price_current)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id_product) DO UPDATE SET
                product_name = EXCLUDED.product_name,
                number_product = EXCLUDED.number_product,
                product_group = EXCLUDED.product_group,
                moq = EXCLUDED.moq,
                price_current = EXCLUDED.price_current
        `, p.IDProduct, p.ProductName, p.NumberProduct, p.ProductGroup, p.MOQ, p.PriceCurrent)
		if err != nil {
			return fmt.Errorf("upsert dim_product %d: %w", p.IDProduct, err)
		}
	}
	for _, st := range stores {
		_, err := s.pool.Exec(ctx, `
            INSERT INTO dim_store (id_store, store_name, number_store, street, postal_code, city, country, state, store_address)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
            ON CONFLICT (id_store) DO UPDATE SET
                store_name = EXCLUDED.store_name,
                number_store = EXCLUDED.number_store,
                street = EXCLUDED.street,
                postal_code = EXCLUDED.postal_code,
                city = EXCLUDED.city,
                country = EXCLUDED.country,
                state = EXCLUDED.state,
                store_address = EXCLUDED.store_address
        `, st.IDStore, st.StoreName, st.NumberStore, st.Street, st.PostalCode,
			st.City, st.Country, st.State, st.StoreAddress)
		if err != nil {
			return fmt.Errorf("upsert dim_store %d: %w", st.IDStore, err)
		}
	}
	return nil
}
