//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import "testing"

func TestNewFakerWithSeed(t *testing.T) {
	seed := uint64(12345)
	f1 := NewFakerWithSeed(seed)
	f2 := NewFakerWithSeed(seed)

	// Same seed should produce same sequence
	for i := 0; i < 10; i++ {
		v1 := f1.Int(0, 1000)
		v2 := f2.Int(0, 1000)
		if v1 != v2 {
			t.Errorf("Same seed produced different values: %d != %d", v1, v2)
		}
	}
}

func TestFakerPrice(t *testing.T) {
	f := NewFakerWithSeed(1)
	for i := 0; i < 100; i++ {
		p := f.Price(0.5, 20.0)
		if p < 0.5 || p > 20.0 {
			t.Errorf("Price out of range: %f", p)
		}
	}
}

func TestChoose(t *testing.T) {
	f := NewFakerWithSeed(7)
	items := []string{"a", "b", "c"}
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[Choose(f, items)] = true
	}
	if len(seen) != 3 {
		t.Errorf("Expected all items chosen, got %v", seen)
	}

	var empty []string
	if got := Choose(f, empty); got != "" {
		t.Errorf("Choose on empty slice = %q, want zero value", got)
	}
}
