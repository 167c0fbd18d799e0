//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package identity implements the Identity Resolver: customer-local
// product/store numbers are mapped to global surrogate ids through a
// read-only mapping snapshot. Mapping maintenance is out-of-band; a run
// only ever reads one immutable snapshot per customer.
package identity

import (
	"fmt"

	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// Snapshot is an immutable view of one customer's identity mappings,
// taken at the start of a run.
type Snapshot struct {
	customerID string
	products   map[string]int64
	stores     map[string]int64
}

// Mapping is one (customer-local number -> global id) entry.
type Mapping struct {
	CustomerID  string
	NumberLocal string
	IDGlobal    int64
}

// NewSnapshot builds a snapshot from mapping entries. Entries for other
// customers are rejected: snapshots never cross a customer boundary.
func NewSnapshot(customerID string, products, stores []Mapping) (*Snapshot, error) {
	s := &Snapshot{
		customerID: customerID,
		products:   make(map[string]int64, len(products)),
		stores:     make(map[string]int64, len(stores)),
	}
	for _, m := range products {
		if m.CustomerID != customerID {
			return nil, fmt.Errorf("product mapping for customer %s in snapshot of %s", m.CustomerID, customerID)
		}
		s.products[m.NumberLocal] = m.IDGlobal
	}
	for _, m := range stores {
		if m.CustomerID != customerID {
			return nil, fmt.Errorf("store mapping for customer %s in snapshot of %s", m.CustomerID, customerID)
		}
		s.stores[m.NumberLocal] = m.IDGlobal
	}
	return s, nil
}

// CustomerID returns the snapshot's customer.
func (s *Snapshot) CustomerID() string {
	return s.customerID
}

// Empty reports whether the snapshot has no mappings at all. An empty
// snapshot aborts the customer's run: every record would be unresolved.
func (s *Snapshot) Empty() bool {
	return len(s.products) == 0 && len(s.stores) == 0
}

// Product resolves a customer-local product number.
func (s *Snapshot) Product(numberLocal string) (int64, bool) {
	id, ok := s.products[numberLocal]
	return id, ok
}

// Store resolves a customer-local store number.
func (s *Snapshot) Store(numberLocal string) (int64, bool) {
	id, ok := s.stores[numberLocal]
	return id, ok
}

// UnresolvedError reports a number with no active mapping. The carrying
// record is excluded from aggregation and the number lands on the
// unknown-numbers candidate list; the run continues.
type UnresolvedError struct {
	CustomerID  string
	Entity      string // "product" or "store"
	NumberLocal string
}

// Error implements the error interface.
func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("no %s mapping for customer %s number %s", e.Entity, e.CustomerID, e.NumberLocal)
}

// Key returns the report-once dedup key for this unresolved number.
func (e *UnresolvedError) Key() string {
	return e.CustomerID + "|" + e.Entity + "|" + e.NumberLocal
}

// Resolve attaches global ids to a normalized record. Product masters
// need a product mapping, store masters a store mapping, event records
// both. The record is not modified on failure.
func (s *Snapshot) Resolve(rec *model.NormalizedRecord) error {
	if rec.CustomerID != s.customerID {
		return fmt.Errorf("record of customer %s resolved against snapshot of %s", rec.CustomerID, s.customerID)
	}

	var idProduct, idStore int64
	if rec.SourceType.IsEvent() || rec.SourceType == model.SourceProducts {
		id, ok := s.products[rec.NumberProduct]
		if !ok {
			return &UnresolvedError{CustomerID: s.customerID, Entity: "product", NumberLocal: rec.NumberProduct}
		}
		idProduct = id
	}
	if rec.SourceType.IsEvent() || rec.SourceType == model.SourceStores {
		id, ok := s.stores[rec.NumberStore]
		if !ok {
			return &UnresolvedError{CustomerID: s.customerID, Entity: "store", NumberLocal: rec.NumberStore}
		}
		idStore = id
	}

	rec.IDProduct = idProduct
	rec.IDStore = idStore
	return nil
}
