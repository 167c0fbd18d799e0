//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package sources defines the source adapter interface and registry.
// An adapter hides transport and decode: whatever the extract looks
// like on the wire, the pipeline only ever sees decoded raw records.
package sources

import (
	"context"
	"time"

	"github.com/pgEdge/pgedge-retailmart/internal/config"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
	"github.com/pgEdge/pgedge-retailmart/internal/normalize"
)

// Request identifies one extract pull: one customer, one source type,
// one inclusive date range. Master extracts (products, stores) ignore
// the range and return the current catalog.
type Request struct {
	Customer config.CustomerConfig
	Source   model.SourceType
	From     time.Time
	To       time.Time

	// Seed makes the demo adapter reproducible; real adapters ignore it.
	Seed uint64
}

// Source is a source adapter supplying decoded raw records.
type Source interface {
	// Name returns the adapter name used in configuration.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Fetch returns the decoded rows of one extract. An empty slice for
	// a sales request is legal and means the customer shipped nothing.
	Fetch(ctx context.Context, req Request) ([]normalize.RawRecord, error)
}
