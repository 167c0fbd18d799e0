//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package views

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/config"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

func fact(product, store int64, d int, salesQty int64) model.FactRow {
	return model.FactRow{
		CustomerID: "1001",
		IDProduct:  product,
		IDStore:    store,
		TargetDate: time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC),
		SalesQty:   decimal.NewFromInt(salesQty),
	}
}

func featureCfg() config.FeatureConfig {
	return config.FeatureConfig{LagDays: []int{1, 7}, RollingWindow: 7, Calendar: true}
}

func featureByDay(t *testing.T, rows []FeatureRow, d int) FeatureRow {
	t.Helper()
	for _, r := range rows {
		if r.TargetDate.Day() == d {
			return r
		}
	}
	t.Fatalf("No feature row for day %d", d)
	return FeatureRow{}
}

func TestFeaturesLags(t *testing.T) {
	facts := []model.FactRow{
		fact(1, 5, 20, 4),
		fact(1, 5, 21, 6),
		fact(1, 5, 27, 8),
	}
	rows := Features(facts, featureCfg())

	day21 := featureByDay(t, rows, 21)
	if lag := day21.Lags[1]; !lag.Valid || !lag.Decimal.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Day 21 lag 1 = %v, want 4", lag)
	}

	day27 := featureByDay(t, rows, 27)
	// Exact calendar lookup: day 26 has no row, so lag 1 is null even
	// though day 21 exists.
	if day27.Lags[1].Valid {
		t.Error("Day 27 lag 1 should be null")
	}
	if lag := day27.Lags[7]; !lag.Valid || !lag.Decimal.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Day 27 lag 7 = %v, want 4", lag)
	}

	day20 := featureByDay(t, rows, 20)
	if day20.Lags[1].Valid || day20.Lags[7].Valid {
		t.Error("First day has no history; lags must be null")
	}
}

func TestFeaturesRollingMeanOverPresentRows(t *testing.T) {
	facts := []model.FactRow{
		fact(1, 5, 25, 4),
		fact(1, 5, 27, 8),
	}
	rows := Features(facts, featureCfg())

	// Window of day 27 contains two present rows: (4 + 8) / 2.
	got := featureByDay(t, rows, 27).Rolling
	if !got.Valid || !got.Decimal.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Rolling mean = %v, want 6", got)
	}
}

func TestFeaturesCalendar(t *testing.T) {
	rows := Features([]model.FactRow{fact(1, 5, 27, 1)}, featureCfg())
	r := rows[0]
	// 2026-08-27 is a Thursday.
	if r.DayOfWeek != int(time.Thursday) || r.Month != 8 {
		t.Errorf("Calendar features wrong: dow=%d month=%d", r.DayOfWeek, r.Month)
	}
}

func TestFeaturesDisabled(t *testing.T) {
	rows := Features([]model.FactRow{fact(1, 5, 27, 1)}, config.FeatureConfig{})
	r := rows[0]
	if r.Lags != nil || r.Rolling.Valid || r.DayOfWeek != 0 || r.Month != 0 {
		t.Errorf("Disabled features must stay zero/null: %+v", r)
	}
}

func TestFeaturesPairIsolation(t *testing.T) {
	facts := []model.FactRow{
		fact(1, 5, 26, 4),
		fact(2, 5, 27, 8), // other product
	}
	rows := Features(facts, featureCfg())
	for _, r := range rows {
		if r.IDProduct == 2 && r.Lags[1].Valid {
			t.Error("Lag must not cross (product, store) pairs")
		}
	}
}

func TestAppJoin(t *testing.T) {
	f := fact(1, 5, 27, 3)
	f.ReturnQty = decimal.NewFromInt(1)
	f.DeliveryQty = decimal.NewFromInt(12)
	f.Stockout = false
	f.Price = decimal.NewNullDecimal(decimal.RequireFromString("2.50"))

	products := []model.DimProduct{{
		IDProduct: 1, NumberProduct: "4711", ProductName: "Kölnisch Wasser", MOQ: 6,
	}}
	stores := []model.DimStore{{
		IDStore: 5, NumberStore: "101", StoreName: "Filiale Süd",
		StoreAddress: "Hauptstrasse 1 – 80331 – München",
	}}

	rows := App([]model.FactRow{f}, products, stores)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 app row, got %d", len(rows))
	}
	r := rows[0]
	if r.ProductName != "Kölnisch Wasser" || r.NumberProduct != "4711" || r.MOQ != 6 {
		t.Errorf("Product join wrong: %+v", r)
	}
	if r.StoreName != "Filiale Süd" || r.NumberStore != "101" ||
		r.StoreAddress != "Hauptstrasse 1 – 80331 – München" {
		t.Errorf("Store join wrong: %+v", r)
	}
	if !r.SalesQty.Equal(decimal.NewFromInt(3)) || !r.DeliveryQty.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Fact columns wrong: %+v", r)
	}
}

func TestAppLeftJoinKeepsOrphanFacts(t *testing.T) {
	rows := App([]model.FactRow{fact(1, 5, 27, 3)}, nil, nil)
	if len(rows) != 1 {
		t.Fatal("Fact row with missing dimensions must survive the join")
	}
	if rows[0].ProductName != "" || rows[0].StoreName != "" {
		t.Error("Missing dimensions yield blank master fields")
	}
}

func TestAppCanonicalOrder(t *testing.T) {
	rows := App([]model.FactRow{
		fact(2, 6, 27, 1),
		fact(1, 5, 28, 1),
		fact(1, 5, 27, 1),
	}, nil, nil)

	if rows[0].IDStore != 5 || !rows[0].TargetDate.Equal(time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected (store, product, date) order, got %+v", rows[0])
	}
	if rows[2].IDStore != 6 {
		t.Errorf("Expected store 6 last, got %+v", rows[2])
	}
}
