//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package model

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	in := time.Date(2026, 8, 27, 15, 30, 45, 123, berlin)
	got := Day(in)
	want := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day() = %s, want %s", got, want)
	}
}

func TestSourceTypeClassification(t *testing.T) {
	events := map[SourceType]bool{
		SourceSales: true, SourceReturns: true, SourceDeliveries: true,
		SourceProducts: false, SourceStores: false,
	}
	for st, want := range events {
		if st.IsEvent() != want {
			t.Errorf("%s.IsEvent() = %v, want %v", st, st.IsEvent(), want)
		}
		if !st.Valid() {
			t.Errorf("%s should be valid", st)
		}
	}
	if SourceType("bogus").Valid() {
		t.Error("Unknown source type should not be valid")
	}
}

func TestNaturalKey(t *testing.T) {
	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	event := NormalizedRecord{SourceType: SourceSales, IDProduct: 1, IDStore: 5, TargetDate: day}
	product := NormalizedRecord{SourceType: SourceProducts, IDProduct: 1}
	store := NormalizedRecord{SourceType: SourceStores, IDStore: 5}

	if event.NaturalKey() == product.NaturalKey() || product.NaturalKey() == store.NaturalKey() {
		t.Error("Natural keys of different record classes must not collide")
	}
	other := event
	other.TargetDate = day.AddDate(0, 0, 1)
	if event.NaturalKey() == other.NaturalKey() {
		t.Error("Different days must produce different keys")
	}
}

func TestComposeStoreAddress(t *testing.T) {
	got := ComposeStoreAddress("Hauptstrasse 1", "80331", "München")
	want := "Hauptstrasse 1 – 80331 – München"
	if got != want {
		t.Errorf("ComposeStoreAddress = %q, want %q", got, want)
	}
}

func TestPartitionString(t *testing.T) {
	p := Partition{CustomerID: "1001", TargetDate: time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)}
	if p.String() != "1001/2026-08-27" {
		t.Errorf("Partition.String() = %q", p.String())
	}
}
