//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package aggregate implements the Daily Aggregator: deduplicated,
// resolved event records of one type collapse into per-(product, store,
// day) rollups. Absent keys stay absent; zero-filling is the Fact
// Assembler's job.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// Daily groups event records by (id_product, id_store, target_date) and
// sums quantities (and, for sales, amounts). Exactly one rollup row is
// produced per key present in the input, in deterministic key order.
func Daily(records []model.NormalizedRecord) []model.DailyRollup {
	byKey := make(map[model.FactKey]*model.DailyRollup)
	for i := range records {
		rec := &records[i]
		key := model.FactKey{
			IDProduct:  rec.IDProduct,
			IDStore:    rec.IDStore,
			TargetDate: rec.TargetDate,
		}
		roll, ok := byKey[key]
		if !ok {
			roll = &model.DailyRollup{
				IDProduct:  key.IDProduct,
				IDStore:    key.IDStore,
				TargetDate: key.TargetDate,
			}
			byKey[key] = roll
		}
		roll.Qty = roll.Qty.Add(rec.Qty)
		if rec.Amount.Valid {
			if !roll.Amount.Valid {
				roll.Amount = decimal.NewNullDecimal(decimal.Zero)
			}
			roll.Amount.Decimal = roll.Amount.Decimal.Add(rec.Amount.Decimal)
		}
	}

	out := make([]model.DailyRollup, 0, len(byKey))
	for _, roll := range byKey {
		out = append(out, *roll)
	}
	SortRollups(out)
	return out
}

// Restrict returns the subset of rollups falling on one target date.
func Restrict(rollups []model.DailyRollup, day time.Time) []model.DailyRollup {
	day = model.Day(day)
	var out []model.DailyRollup
	for _, r := range rollups {
		if r.TargetDate.Equal(day) {
			out = append(out, r)
		}
	}
	return out
}

// SortRollups orders rollups by (id_store, id_product, target_date),
// the mart's canonical sort.
func SortRollups(rollups []model.DailyRollup) {
	sort.Slice(rollups, func(i, j int) bool {
		a, b := rollups[i], rollups[j]
		if a.IDStore != b.IDStore {
			return a.IDStore < b.IDStore
		}
		if a.IDProduct != b.IDProduct {
			return a.IDProduct < b.IDProduct
		}
		return a.TargetDate.Before(b.TargetDate)
	})
}
