//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

func sale(product, store int64, d int, qty, amount string) model.NormalizedRecord {
	rec := model.NormalizedRecord{
		SourceType: model.SourceSales,
		CustomerID: "1001",
		IDProduct:  product,
		IDStore:    store,
		TargetDate: time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC),
		Qty:        decimal.RequireFromString(qty),
	}
	if amount != "" {
		rec.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return rec
}

func TestDailySumsPerKey(t *testing.T) {
	rollups := Daily([]model.NormalizedRecord{
		sale(1, 5, 27, "3", "6.00"),
		sale(1, 5, 27, "2", "4.00"), // same key, summed
		sale(1, 5, 28, "1", "2.00"), // next day
		sale(2, 5, 27, "4", ""),
	})

	if len(rollups) != 3 {
		t.Fatalf("Expected 3 rollups, got %d", len(rollups))
	}

	first := rollups[0]
	if first.IDProduct != 1 || first.TargetDate.Day() != 27 {
		t.Fatalf("Unexpected canonical order: %+v", first)
	}
	if !first.Qty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected summed qty 5, got %s", first.Qty)
	}
	if !first.Amount.Valid || !first.Amount.Decimal.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("Expected summed amount 10.00, got %v", first.Amount)
	}

	// No amount observed for product 2: stays null, not zero.
	last := rollups[2]
	if last.IDProduct != 2 || last.Amount.Valid {
		t.Errorf("Expected null amount for product 2, got %+v", last)
	}
}

func TestDailyAbsentKeysStayAbsent(t *testing.T) {
	rollups := Daily([]model.NormalizedRecord{sale(1, 5, 27, "3", "")})
	if len(rollups) != 1 {
		t.Fatalf("Expected exactly the present key, got %d rollups", len(rollups))
	}
}

func TestDailyDeterministicOrder(t *testing.T) {
	in := []model.NormalizedRecord{
		sale(2, 6, 28, "1", ""),
		sale(1, 5, 27, "1", ""),
		sale(1, 6, 27, "1", ""),
		sale(1, 5, 28, "1", ""),
	}
	a := Daily(in)
	b := Daily([]model.NormalizedRecord{in[3], in[1], in[0], in[2]})
	for i := range a {
		if a[i].Key() != b[i].Key() {
			t.Fatalf("Order differs at %d", i)
		}
	}
}

func TestRestrict(t *testing.T) {
	rollups := Daily([]model.NormalizedRecord{
		sale(1, 5, 27, "3", ""),
		sale(1, 5, 28, "2", ""),
	})
	day := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC) // truncated internally
	got := Restrict(rollups, day)
	if len(got) != 1 || got[0].TargetDate.Day() != 28 {
		t.Errorf("Restrict returned %+v", got)
	}
}
