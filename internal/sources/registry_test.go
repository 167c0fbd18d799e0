//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package sources_test

import (
	"testing"

	"github.com/pgEdge/pgedge-retailmart/internal/sources"
	// Import source packages to trigger their init() registration
	_ "github.com/pgEdge/pgedge-retailmart/internal/sources/demo"
)

func TestGet(t *testing.T) {
	src, err := sources.Get("demo")
	if err != nil {
		t.Fatalf("Failed to get source 'demo': %v", err)
	}
	if src.Name() != "demo" {
		t.Errorf("Name mismatch: got %q", src.Name())
	}
	if src.Description() == "" {
		t.Error("Description should not be empty")
	}
}

func TestGetInvalidSource(t *testing.T) {
	if _, err := sources.Get("nonexistent"); err == nil {
		t.Error("Expected error for unknown source")
	}
}

func TestList(t *testing.T) {
	names := sources.List()
	found := false
	for _, n := range names {
		if n == "demo" {
			found = true
		}
	}
	if !found {
		t.Errorf("List() missing 'demo': %v", names)
	}
}
