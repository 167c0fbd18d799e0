//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dimension implements the Dimension Builder: conformed
// dim_product and dim_store rows, one current row per global id,
// resolved last-write-wins as a deterministic reduction (never in-place
// overwrite during a scan), so the result is order-independent.
package dimension

import (
	"sort"
	"strconv"

	"github.com/pgEdge/pgedge-retailmart/internal/issue"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// Products reduces resolved product master records into one DimProduct
// per id_product. The latest record by ingest_ts wins (tie-broken by
// content hash); a required product_name missing on the winner falls
// back to the most recent record that had it. Ids that never supplied a
// name are reported as IncompleteMaster and still emitted, so the app
// view join does not lose fact rows.
func Products(records []model.NormalizedRecord, rep *issue.Reporter) []model.DimProduct {
	groups := groupByID(records, func(r *model.NormalizedRecord) int64 { return r.IDProduct })

	out := make([]model.DimProduct, 0, len(groups.ids))
	for _, id := range groups.ids {
		versions := groups.byID[id] // newest first
		latest := versions[0]

		dim := model.DimProduct{
			IDProduct:     id,
			NumberProduct: latest.NumberProduct,
			ProductName:   latest.ProductName,
			ProductGroup:  latest.ProductGroup,
			MOQ:           latest.MOQ,
			PriceCurrent:  latest.Price,
		}
		for _, v := range versions[1:] {
			if dim.ProductName == "" {
				dim.ProductName = v.ProductName
			}
			if dim.ProductGroup == "" {
				dim.ProductGroup = v.ProductGroup
			}
			if !dim.PriceCurrent.Valid {
				dim.PriceCurrent = v.Price
			}
		}

		if dim.ProductName == "" {
			rep.Report(issue.Issue{
				Kind:       issue.IncompleteMaster,
				CustomerID: latest.CustomerID,
				SourceType: model.SourceProducts,
				Detail:     "product_name never populated for id_product " + strconv.FormatInt(id, 10),
			})
		}
		out = append(out, dim)
	}
	return out
}

// Stores reduces resolved store master records into one DimStore per
// id_store, with the same last-write-wins and fallback rules as
// Products. The presentation address is composed from the winning
// street, postal code and city.
func Stores(records []model.NormalizedRecord, rep *issue.Reporter) []model.DimStore {
	groups := groupByID(records, func(r *model.NormalizedRecord) int64 { return r.IDStore })

	out := make([]model.DimStore, 0, len(groups.ids))
	for _, id := range groups.ids {
		versions := groups.byID[id]
		latest := versions[0]

		dim := model.DimStore{
			IDStore:     id,
			NumberStore: latest.NumberStore,
			StoreName:   latest.StoreName,
			Street:      latest.Street,
			PostalCode:  latest.PostalCode,
			City:        latest.City,
			Country:     latest.Country,
			State:       latest.State,
		}
		for _, v := range versions[1:] {
			if dim.StoreName == "" {
				dim.StoreName = v.StoreName
			}
			if dim.Street == "" {
				dim.Street = v.Street
			}
			if dim.PostalCode == "" {
				dim.PostalCode = v.PostalCode
			}
			if dim.City == "" {
				dim.City = v.City
			}
			if dim.Country == "" {
				dim.Country = v.Country
			}
			if dim.State == "" {
				dim.State = v.State
			}
		}
		dim.StoreAddress = model.ComposeStoreAddress(dim.Street, dim.PostalCode, dim.City)

		if dim.StoreName == "" {
			rep.Report(issue.Issue{
				Kind:       issue.IncompleteMaster,
				CustomerID: latest.CustomerID,
				SourceType: model.SourceStores,
				Detail:     "store_name never populated for id_store " + strconv.FormatInt(id, 10),
			})
		}
		out = append(out, dim)
	}
	return out
}

type grouped struct {
	ids  []int64
	byID map[int64][]model.NormalizedRecord
}

// groupByID buckets records per global id, each bucket sorted newest
// first by ingest_ts, tie-broken by content hash.
func groupByID(records []model.NormalizedRecord, id func(*model.NormalizedRecord) int64) grouped {
	g := grouped{byID: make(map[int64][]model.NormalizedRecord)}
	for i := range records {
		key := id(&records[i])
		if _, ok := g.byID[key]; !ok {
			g.ids = append(g.ids, key)
		}
		g.byID[key] = append(g.byID[key], records[i])
	}
	sort.Slice(g.ids, func(i, j int) bool { return g.ids[i] < g.ids[j] })
	for key := range g.byID {
		versions := g.byID[key]
		sort.Slice(versions, func(i, j int) bool {
			if !versions[i].IngestTS.Equal(versions[j].IngestTS) {
				return versions[i].IngestTS.After(versions[j].IngestTS)
			}
			return versions[i].ContentHash > versions[j].ContentHash
		})
	}
	return g
}
