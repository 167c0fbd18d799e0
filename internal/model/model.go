//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package model defines the canonical data model shared by all pipeline
// stages: normalized records, daily rollups, fact rows and the two
// conformed dimensions.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType identifies one of the five per-customer extract types.
type SourceType string

// Known source types.
const (
	SourceSales      SourceType = "sales"
	SourceReturns    SourceType = "returns"
	SourceDeliveries SourceType = "deliveries"
	SourceProducts   SourceType = "products"
	SourceStores     SourceType = "stores"
)

// EventTypes lists the three independent event streams in processing order.
var EventTypes = []SourceType{SourceSales, SourceReturns, SourceDeliveries}

// IsEvent reports whether the source type carries dated event records
// (as opposed to product/store master data).
func (s SourceType) IsEvent() bool {
	switch s {
	case SourceSales, SourceReturns, SourceDeliveries:
		return true
	}
	return false
}

// Valid reports whether s is one of the five known source types.
func (s SourceType) Valid() bool {
	switch s {
	case SourceSales, SourceReturns, SourceDeliveries, SourceProducts, SourceStores:
		return true
	}
	return false
}

// Day truncates a timestamp to its UTC calendar day. All target_date
// values in the pipeline are normalized through this so map keys and
// date comparisons are exact.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizedRecord is the transient per-row output of the Record
// Normalizer: canonical field names, coerced types and provenance
// metadata. It is consumed immediately downstream and never persisted.
type NormalizedRecord struct {
	SourceType SourceType
	CustomerID string

	// Natural key fields (customer-local numbers; ids attached by the
	// Identity Resolver).
	NumberProduct string
	NumberStore   string
	TargetDate    time.Time // zero for master records

	// Event payload.
	Qty    decimal.Decimal
	Amount decimal.NullDecimal // sales only

	// Product master payload.
	ProductName  string
	ProductGroup string
	MOQ          int
	Price        decimal.NullDecimal

	// Store master payload.
	StoreName  string
	Street     string
	PostalCode string
	City       string
	Country    string
	State      string

	// Provenance.
	ContentHash string
	IngestTS    time.Time
	SourceFile  string

	// Global surrogate ids, zero until resolved.
	IDProduct int64
	IDStore   int64
}

// NaturalKey returns the dedup grouping key: global ids plus target date
// for events, the single global id for masters.
func (r *NormalizedRecord) NaturalKey() string {
	if r.SourceType.IsEvent() {
		return fmt.Sprintf("%d|%d|%s", r.IDProduct, r.IDStore, r.TargetDate.Format(time.DateOnly))
	}
	if r.SourceType == SourceProducts {
		return fmt.Sprintf("p|%d", r.IDProduct)
	}
	return fmt.Sprintf("s|%d", r.IDStore)
}

// PairKey identifies one (product, store) pair.
type PairKey struct {
	IDProduct int64
	IDStore   int64
}

// FactKey identifies one fact row.
type FactKey struct {
	IDProduct  int64
	IDStore    int64
	TargetDate time.Time
}

// Pair returns the key's (product, store) pair.
func (k FactKey) Pair() PairKey {
	return PairKey{IDProduct: k.IDProduct, IDStore: k.IDStore}
}

// DailyRollup is one per-(product, store, day) aggregate for a single
// event type. Absent keys are implicitly zero and filled by the Fact
// Assembler, not here.
type DailyRollup struct {
	IDProduct  int64
	IDStore    int64
	TargetDate time.Time
	Qty        decimal.Decimal
	Amount     decimal.NullDecimal // sales only
}

// Key returns the rollup's fact key.
func (r DailyRollup) Key() FactKey {
	return FactKey{IDProduct: r.IDProduct, IDStore: r.IDStore, TargetDate: r.TargetDate}
}

// FactRow is one row of fact_daily_store_product.
type FactRow struct {
	CustomerID  string
	IDProduct   int64
	IDStore     int64
	TargetDate  time.Time
	SalesQty    decimal.Decimal
	ReturnQty   decimal.Decimal
	DeliveryQty decimal.Decimal
	Stockout    bool
	Price       decimal.NullDecimal // null only when no price has ever been observed
}

// Key returns the fact row's key.
func (f FactRow) Key() FactKey {
	return FactKey{IDProduct: f.IDProduct, IDStore: f.IDStore, TargetDate: f.TargetDate}
}

// DimProduct is one current row of the conformed product dimension.
type DimProduct struct {
	IDProduct     int64
	NumberProduct string
	ProductName   string
	ProductGroup  string
	MOQ           int
	PriceCurrent  decimal.NullDecimal
}

// DimStore is one current row of the conformed store dimension.
type DimStore struct {
	IDStore      int64
	NumberStore  string
	StoreName    string
	Street       string
	PostalCode   string
	City         string
	Country      string
	State        string
	StoreAddress string
}

// ComposeStoreAddress renders the presentation address the way the
// evaluation app expects it: street – postal code – city.
func ComposeStoreAddress(street, postalCode, city string) string {
	return street + " – " + postalCode + " – " + city
}

// Partition is the (customer, target_date) unit of atomic overwrite in
// the fact store.
type Partition struct {
	CustomerID string
	TargetDate time.Time
}

// String renders the partition key for logs.
func (p Partition) String() string {
	return p.CustomerID + "/" + p.TargetDate.Format(time.DateOnly)
}
