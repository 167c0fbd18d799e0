//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package assemble

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/issue"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// stockoutFold runs the Stockout Engine over one (product, store) pair.
// It is an explicit fold over the pair's chronologically ordered days,
// carrying virtual_stock as the accumulator:
//
//	virtual_stock' = max(0, virtual_stock + delivery_qty - sales_qty + return_qty)
//	stockout       = virtual_stock' == 0 && sales_qty == 0
//
// Stock hitting zero with no sale recorded distinguishes "stocked out"
// from "had stock, sold zero". The first observed day has no prior
// snapshot; it is folded as if starting stock were zero, and the first
// warmupDays observed days per pair are forced to stockout=false because
// the inference is unreliable without history. Both policies are
// deliberate approximations. Converted pack-SKU deliveries feed the
// accumulator only; they never touch the row's delivery_qty.
//
// rows must be sorted by ascending target date and all belong to one
// pair. converted holds dated stock inflows from pack-SKU conversions,
// sorted ascending; inflows dated on or before a row's day are absorbed
// before that row's transition.
//
// The returned trail records the accumulator after every day that
// changed it (row days and off-row inflow days), so callers can persist
// date-scoped snapshots and replay any day without double-applying its
// deltas.
func stockoutFold(rows []*model.FactRow, converted []datedQty, state pairState,
	warmupDays int, customerID string, rep *issue.Reporter) (pairState, []datedState) {

	stock := state.VirtualStock
	observed := state.ObservedDays
	anomalyReported := false
	var trail []datedState

	ci := 0
	for _, row := range rows {
		for ci < len(converted) && !converted[ci].Date.After(row.TargetDate) {
			stock = stock.Add(converted[ci].Qty)
			if converted[ci].Date.Before(row.TargetDate) {
				trail = append(trail, datedState{
					Date:  converted[ci].Date,
					State: pairState{VirtualStock: stock, ObservedDays: observed},
				})
			}
			ci++
		}

		next := stock.Add(row.DeliveryQty).Sub(row.SalesQty).Add(row.ReturnQty)
		if next.IsNegative() {
			// Delivery/return data arriving out of order relative to
			// sales. Clamp and keep going with the clamped value.
			if !anomalyReported {
				rep.ReportOnce(anomalyKey(customerID, row.IDProduct, row.IDStore), issue.Issue{
					Kind:       issue.InventoryAnomaly,
					CustomerID: customerID,
					SourceType: model.SourceDeliveries,
					TargetDate: row.TargetDate,
					Detail:     "virtual stock would go negative; clamped to zero",
				})
				anomalyReported = true
			}
			next = decimal.Zero
		}
		stock = next

		row.Stockout = stock.IsZero() && row.SalesQty.IsZero()
		if observed < warmupDays {
			row.Stockout = false
		}
		observed++
		trail = append(trail, datedState{
			Date:  row.TargetDate,
			State: pairState{VirtualStock: stock, ObservedDays: observed},
		})
	}

	// Absorb any converted inflow dated after the last observed row so a
	// resumed backfill starts from the right stock level.
	for ; ci < len(converted); ci++ {
		stock = stock.Add(converted[ci].Qty)
		trail = append(trail, datedState{
			Date:  converted[ci].Date,
			State: pairState{VirtualStock: stock, ObservedDays: observed},
		})
	}

	state.VirtualStock = stock
	state.ObservedDays = observed
	return state, trail
}

func anomalyKey(customerID string, idProduct, idStore int64) string {
	return "inventory_anomaly|" + customerID + "|" +
		strconv.FormatInt(idProduct, 10) + "|" + strconv.FormatInt(idStore, 10)
}
