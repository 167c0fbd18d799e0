//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot("1001",
		[]Mapping{{CustomerID: "1001", NumberLocal: "4711", IDGlobal: 10001}},
		[]Mapping{{CustomerID: "1001", NumberLocal: "101", IDGlobal: 501}})
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	return snap
}

func TestNewSnapshotRejectsForeignMappings(t *testing.T) {
	_, err := NewSnapshot("1001",
		[]Mapping{{CustomerID: "1002", NumberLocal: "4711", IDGlobal: 10001}}, nil)
	if err == nil {
		t.Fatal("Expected error for mapping of another customer")
	}
}

func TestResolveEvent(t *testing.T) {
	snap := testSnapshot(t)
	rec := model.NormalizedRecord{
		SourceType:    model.SourceSales,
		CustomerID:    "1001",
		NumberProduct: "4711",
		NumberStore:   "101",
		TargetDate:    time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
	}
	if err := snap.Resolve(&rec); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rec.IDProduct != 10001 || rec.IDStore != 501 {
		t.Errorf("Wrong ids: product=%d store=%d", rec.IDProduct, rec.IDStore)
	}
}

func TestResolveUnknownNumber(t *testing.T) {
	snap := testSnapshot(t)
	rec := model.NormalizedRecord{
		SourceType:    model.SourceSales,
		CustomerID:    "1001",
		NumberProduct: "9999",
		NumberStore:   "101",
	}
	err := snap.Resolve(&rec)
	var ue *UnresolvedError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected *UnresolvedError, got %v", err)
	}
	if ue.NumberLocal != "9999" || ue.Entity != "product" {
		t.Errorf("Wrong error detail: %+v", ue)
	}
	if rec.IDProduct != 0 || rec.IDStore != 0 {
		t.Error("Record must stay unmodified on failure")
	}

	// The key is stable, so the unknown number is reported once.
	rec2 := rec
	err2 := snap.Resolve(&rec2)
	var ue2 *UnresolvedError
	if !errors.As(err2, &ue2) || ue.Key() != ue2.Key() {
		t.Error("Expected identical report-once keys for the same number")
	}
}

func TestResolveMasterNeedsOneMapping(t *testing.T) {
	snap := testSnapshot(t)

	product := model.NormalizedRecord{
		SourceType: model.SourceProducts, CustomerID: "1001", NumberProduct: "4711",
	}
	if err := snap.Resolve(&product); err != nil {
		t.Fatalf("Product master resolve failed: %v", err)
	}
	if product.IDProduct != 10001 {
		t.Errorf("Wrong product id: %d", product.IDProduct)
	}

	store := model.NormalizedRecord{
		SourceType: model.SourceStores, CustomerID: "1001", NumberStore: "101",
	}
	if err := snap.Resolve(&store); err != nil {
		t.Fatalf("Store master resolve failed: %v", err)
	}
	if store.IDStore != 501 {
		t.Errorf("Wrong store id: %d", store.IDStore)
	}
}

func TestResolveWrongCustomer(t *testing.T) {
	snap := testSnapshot(t)
	rec := model.NormalizedRecord{
		SourceType: model.SourceSales, CustomerID: "1002",
		NumberProduct: "4711", NumberStore: "101",
	}
	if err := snap.Resolve(&rec); err == nil {
		t.Fatal("Expected error resolving against another customer's snapshot")
	}
}

func TestEmpty(t *testing.T) {
	snap, err := NewSnapshot("1001", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Empty() {
		t.Error("Snapshot with no mappings should be empty")
	}
	if testSnapshot(t).Empty() {
		t.Error("Populated snapshot should not be empty")
	}
}
