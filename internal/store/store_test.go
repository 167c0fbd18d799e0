//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/assemble"
	"github.com/pgEdge/pgedge-retailmart/internal/db"
	"github.com/pgEdge/pgedge-retailmart/internal/identity"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
	"github.com/pgEdge/pgedge-retailmart/internal/testutil"
	"github.com/pgEdge/pgedge-retailmart/internal/views"
)

func setupStore(t *testing.T) (context.Context, *Store, func()) {
	t.Helper()
	base := testutil.SkipIfNoPostgres(t)
	connStr := testutil.CreateTestDB(t, base)

	ctx := context.Background()
	pool, err := db.Connect(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	if err := CreateSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}

	cleanup := func() {
		pool.Close()
		testutil.DropTestDB(t, base, testutil.GetDBNameFromConnStr(connStr))
	}
	return ctx, New(pool), cleanup
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx, st, cleanup := setupStore(t)
	defer cleanup()

	products := []identity.Mapping{
		{CustomerID: "1001", NumberLocal: "4711", IDGlobal: 10001},
	}
	stores := []identity.Mapping{
		{CustomerID: "1001", NumberLocal: "101", IDGlobal: 501},
	}
	if err := st.SeedMappings(ctx, products, stores); err != nil {
		t.Fatal(err)
	}
	// Seeding again must be a no-op, not an error.
	if err := st.SeedMappings(ctx, products, stores); err != nil {
		t.Fatalf("Re-seed failed: %v", err)
	}

	snap, err := st.LoadSnapshot(ctx, "1001")
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := snap.Product("4711"); !ok || id != 10001 {
		t.Errorf("Product mapping not loaded: %d %v", id, ok)
	}
	if id, ok := snap.Store("101"); !ok || id != 501 {
		t.Errorf("Store mapping not loaded: %d %v", id, ok)
	}

	other, err := st.LoadSnapshot(ctx, "1002")
	if err != nil {
		t.Fatal(err)
	}
	if !other.Empty() {
		t.Error("Snapshot must be scoped per customer")
	}
}

func TestCarryStateRoundTrip(t *testing.T) {
	ctx, st, cleanup := setupStore(t)
	defer cleanup()

	pair := model.PairKey{IDProduct: 10001, IDStore: 501}
	day := func(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }
	snapshot := func(price string, stock int64, observed int) *assemble.CarryState {
		s := assemble.NewCarryState()
		s.Price[pair] = decimal.RequireFromString(price)
		s.VirtualStock[pair] = decimal.NewFromInt(stock)
		s.ObservedDays[pair] = observed
		return s
	}

	snapshots := map[time.Time]*assemble.CarryState{
		day(1): snapshot("2.50", 10, 1),
		day(2): snapshot("2.00", 5, 2),
		day(3): snapshot("2.00", 5, 3),
	}
	if err := st.SaveCarryState(ctx, "1001", day(1), day(3), snapshots); err != nil {
		t.Fatal(err)
	}

	// Loading for a run starting at day 2 must see day 1's state, not
	// any state produced by day 2 or later.
	got, err := st.LoadCarryState(ctx, "1001", day(2))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Price[pair].Equal(decimal.RequireFromString("2.50")) {
		t.Errorf("Price = %s, want 2.50", got.Price[pair])
	}
	if !got.VirtualStock[pair].Equal(decimal.NewFromInt(10)) {
		t.Errorf("VirtualStock = %s, want 10", got.VirtualStock[pair])
	}
	if got.ObservedDays[pair] != 1 {
		t.Errorf("ObservedDays = %d, want 1", got.ObservedDays[pair])
	}

	// Loading before any snapshot yields an empty state.
	got, err = st.LoadCarryState(ctx, "1001", day(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ObservedDays) != 0 {
		t.Error("Expected empty state before the first snapshot")
	}

	// Replaying day 2 replaces only day 2's snapshot; snapshots on
	// either side of the window survive.
	replaced := map[time.Time]*assemble.CarryState{
		day(2): snapshot("3.00", 8, 2),
	}
	if err := st.SaveCarryState(ctx, "1001", day(2), day(2), replaced); err != nil {
		t.Fatal(err)
	}
	got, err = st.LoadCarryState(ctx, "1001", day(3))
	if err != nil {
		t.Fatal(err)
	}
	if !got.VirtualStock[pair].Equal(decimal.NewFromInt(8)) {
		t.Errorf("VirtualStock after replacement = %s, want 8", got.VirtualStock[pair])
	}
	got, err = st.LoadCarryState(ctx, "1001", day(4))
	if err != nil {
		t.Fatal(err)
	}
	if !got.VirtualStock[pair].Equal(decimal.NewFromInt(5)) {
		t.Errorf("Day 3 snapshot must survive a day-2 replay, got %s", got.VirtualStock[pair])
	}
	got, err = st.LoadCarryState(ctx, "1001", day(2))
	if err != nil {
		t.Fatal(err)
	}
	if !got.VirtualStock[pair].Equal(decimal.NewFromInt(10)) {
		t.Errorf("Day 1 snapshot must survive a day-2 replay, got %s", got.VirtualStock[pair])
	}
}

func TestReplacePartitionIdempotent(t *testing.T) {
	ctx, st, cleanup := setupStore(t)
	defer cleanup()

	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	part := model.Partition{CustomerID: "1001", TargetDate: day}
	facts := []model.FactRow{{
		CustomerID: "1001", IDProduct: 10001, IDStore: 501, TargetDate: day,
		SalesQty: decimal.NewFromInt(3),
		Price:    decimal.NewNullDecimal(decimal.RequireFromString("2.50")),
	}}
	features := []views.FeatureRow{{
		IDProduct: 10001, IDStore: 501, TargetDate: day,
		SalesQty: decimal.NewFromInt(3), DayOfWeek: 4, Month: 8,
	}}
	app := []views.AppRow{{
		IDProduct: 10001, IDStore: 501, TargetDate: day,
		SalesQty: decimal.NewFromInt(3), ProductName: "Kölnisch Wasser",
	}}

	for i := 0; i < 2; i++ {
		if err := st.ReplacePartition(ctx, part, facts, features, app); err != nil {
			t.Fatalf("ReplacePartition run %d: %v", i+1, err)
		}
	}

	var count int
	if err := st.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fact_daily_store_product`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected 1 fact row after re-run, got %d", count)
	}

	// Replacing with an empty set clears the partition.
	if err := st.ReplacePartition(ctx, part, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := st.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fact_daily_store_product`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Expected empty partition, got %d rows", count)
	}
}

func TestUpsertDimensions(t *testing.T) {
	ctx, st, cleanup := setupStore(t)
	defer cleanup()

	products := []model.DimProduct{{
		IDProduct: 10001, NumberProduct: "4711", ProductName: "Old", MOQ: 6,
	}}
	stores := []model.DimStore{{
		IDStore: 501, NumberStore: "101", StoreName: "Filiale Süd",
		Street: "Hauptstrasse 1", PostalCode: "80331", City: "München",
		StoreAddress: "Hauptstrasse 1 – 80331 – München",
	}}
	if err := st.UpsertDimensions(ctx, products, stores); err != nil {
		t.Fatal(err)
	}

	products[0].ProductName = "New"
	if err := st.UpsertDimensions(ctx, products, nil); err != nil {
		t.Fatal(err)
	}

	var name string
	if err := st.pool.QueryRow(ctx,
		`SELECT product_name FROM dim_product WHERE id_product = 10001`).Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "New" {
		t.Errorf("Expected last write to win, got %q", name)
	}

	var count int
	if err := st.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dim_product`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Expected one current row per id, got %d", count)
	}
}

func TestMetadata(t *testing.T) {
	ctx, st, cleanup := setupStore(t)
	defer cleanup()

	if err := SaveMetadata(ctx, st.pool); err != nil {
		t.Fatal(err)
	}
	v, err := GetMetadataValue(ctx, st.pool, "version")
	if err != nil || v == "" {
		t.Errorf("Expected version metadata, got %q (%v)", v, err)
	}
}
