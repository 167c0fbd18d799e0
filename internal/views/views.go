//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package views implements the View Projector: pure projections and
// joins over the fact table and the dimensions, no new measures. The ML
// feature view derives its optional columns from fact history only,
// never from the dimensions.
package views

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/config"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// FeatureRow is one row of the ML feature view: the required fact
// columns plus the configured derived features. Unconfigured features
// stay null/zero.
type FeatureRow struct {
	IDProduct  int64
	IDStore    int64
	TargetDate time.Time
	SalesQty   decimal.Decimal
	Stockout   bool

	// Lags holds lagged sales_qty per configured lag; null when the
	// lagged calendar day has no fact row.
	Lags map[int]decimal.NullDecimal

	// Rolling is the mean sales_qty over the rows present in the
	// configured trailing calendar window (including the current day).
	Rolling decimal.NullDecimal

	// Calendar features.
	DayOfWeek int // 0 = Sunday
	Month     int
}

// AppRow is one row of the presentation view: the fact row joined with
// both dimensions, exactly the fourteen contract columns.
type AppRow struct {
	IDProduct   int64
	IDStore     int64
	TargetDate  time.Time
	SalesQty    decimal.Decimal
	ReturnQty   decimal.Decimal
	DeliveryQty decimal.Decimal
	Stockout    bool
	Price       decimal.NullDecimal

	ProductName   string
	NumberProduct string
	MOQ           int

	NumberStore  string
	StoreName    string
	StoreAddress string
}

// Features projects fact rows into the ML feature view. Derived columns
// are deterministic functions of fact history: a lag of N days reads the
// sales_qty of the exact calendar day N days earlier for the same
// (product, store), and the rolling mean averages the rows present in
// the trailing window. Absent history yields null, not zero.
func Features(facts []model.FactRow, cfg config.FeatureConfig) []FeatureRow {
	sorted := make([]model.FactRow, len(facts))
	copy(sorted, facts)
	sortFacts(sorted)

	// Per-pair sales history for lag lookups.
	history := make(map[model.PairKey]map[time.Time]decimal.Decimal)
	for _, f := range sorted {
		pair := f.Key().Pair()
		if history[pair] == nil {
			history[pair] = make(map[time.Time]decimal.Decimal)
		}
		history[pair][f.TargetDate] = f.SalesQty
	}

	out := make([]FeatureRow, 0, len(sorted))
	for _, f := range sorted {
		row := FeatureRow{
			IDProduct:  f.IDProduct,
			IDStore:    f.IDStore,
			TargetDate: f.TargetDate,
			SalesQty:   f.SalesQty,
			Stockout:   f.Stockout,
		}
		pair := f.Key().Pair()

		if len(cfg.LagDays) > 0 {
			row.Lags = make(map[int]decimal.NullDecimal, len(cfg.LagDays))
			for _, lag := range cfg.LagDays {
				day := f.TargetDate.AddDate(0, 0, -lag)
				if qty, ok := history[pair][day]; ok {
					row.Lags[lag] = decimal.NewNullDecimal(qty)
				} else {
					row.Lags[lag] = decimal.NullDecimal{}
				}
			}
		}

		if cfg.RollingWindow > 0 {
			sum := decimal.Zero
			n := 0
			for i := 0; i < cfg.RollingWindow; i++ {
				day := f.TargetDate.AddDate(0, 0, -i)
				if qty, ok := history[pair][day]; ok {
					sum = sum.Add(qty)
					n++
				}
			}
			if n > 0 {
				row.Rolling = decimal.NewNullDecimal(sum.DivRound(decimal.NewFromInt(int64(n)), 2))
			}
		}

		if cfg.Calendar {
			row.DayOfWeek = int(f.TargetDate.Weekday())
			row.Month = int(f.TargetDate.Month())
		}

		out = append(out, row)
	}
	return out
}

// App joins fact rows with both dimensions on the global ids. The join
// is a left join: a fact row whose dimension is missing still appears,
// with blank master fields.
func App(facts []model.FactRow, products []model.DimProduct, stores []model.DimStore) []AppRow {
	prodByID := make(map[int64]model.DimProduct, len(products))
	for _, p := range products {
		prodByID[p.IDProduct] = p
	}
	storeByID := make(map[int64]model.DimStore, len(stores))
	for _, s := range stores {
		storeByID[s.IDStore] = s
	}

	sorted := make([]model.FactRow, len(facts))
	copy(sorted, facts)
	sortFacts(sorted)

	out := make([]AppRow, 0, len(sorted))
	for _, f := range sorted {
		row := AppRow{
			IDProduct:   f.IDProduct,
			IDStore:     f.IDStore,
			TargetDate:  f.TargetDate,
			SalesQty:    f.SalesQty,
			ReturnQty:   f.ReturnQty,
			DeliveryQty: f.DeliveryQty,
			Stockout:    f.Stockout,
			Price:       f.Price,
		}
		if p, ok := prodByID[f.IDProduct]; ok {
			row.ProductName = p.ProductName
			row.NumberProduct = p.NumberProduct
			row.MOQ = p.MOQ
		}
		if s, ok := storeByID[f.IDStore]; ok {
			row.NumberStore = s.NumberStore
			row.StoreName = s.StoreName
			row.StoreAddress = s.StoreAddress
		}
		out = append(out, row)
	}
	return out
}

func sortFacts(facts []model.FactRow) {
	sort.Slice(facts, func(i, j int) bool {
		a, b := facts[i], facts[j]
		if a.IDStore != b.IDStore {
			return a.IDStore < b.IDStore
		}
		if a.IDProduct != b.IDProduct {
			return a.IDProduct < b.IDProduct
		}
		return a.TargetDate.Before(b.TargetDate)
	})
}
