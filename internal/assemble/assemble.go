//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package assemble implements the Fact Assembler: the three independent
// daily rollups are outer-joined into fact rows with zero-fill, price is
// resolved with carry-forward, and the Stockout Engine populates the
// stockout flag.
package assemble

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/issue"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// Conversion feeds deliveries of one SKU into another SKU's virtual
// stock with a unit factor (pack SKU -> sales SKU), already resolved to
// global ids.
type Conversion struct {
	FromProduct int64
	ToProduct   int64
	Factor      decimal.Decimal
}

// Options configures one assembler.
type Options struct {
	CustomerID string

	// WarmupDays suppresses stockout inference on the first N observed
	// days per (product, store).
	WarmupDays int

	// DenseCalendar fills every day between a pair's first and last
	// observed date with zero-quantity rows before the stockout fold.
	DenseCalendar bool

	// Workers bounds stockout-fold parallelism across pairs.
	Workers int

	Conversions []Conversion
}

// CarryState is the per-pair state the assembler carries across
// partitions: last resolved price, running virtual stock and the number
// of observed days (for the warm-up window). A run seeds it from the
// stored snapshot dated strictly before its window so replaying a day
// never applies that day's deltas twice.
type CarryState struct {
	Price        map[model.PairKey]decimal.Decimal
	VirtualStock map[model.PairKey]decimal.Decimal
	ObservedDays map[model.PairKey]int
}

// NewCarryState returns an empty carry state.
func NewCarryState() *CarryState {
	return &CarryState{
		Price:        make(map[model.PairKey]decimal.Decimal),
		VirtualStock: make(map[model.PairKey]decimal.Decimal),
		ObservedDays: make(map[model.PairKey]int),
	}
}

// pairState is the fold accumulator for one pair.
type pairState struct {
	VirtualStock decimal.Decimal
	ObservedDays int
}

// datedQty is one dated stock inflow from a pack-SKU conversion.
type datedQty struct {
	Date time.Time
	Qty  decimal.Decimal
}

// datedState is one pair's fold state as of the end of a day.
type datedState struct {
	Date  time.Time
	State pairState
}

// Assembler builds fact rows for one customer. It is not safe for
// concurrent use; customers run in separate assemblers.
type Assembler struct {
	opts      Options
	carry     *CarryState
	snapshots map[time.Time]*CarryState
}

// New creates an assembler. carry may be nil for a full backfill.
func New(opts Options, carry *CarryState) *Assembler {
	if carry == nil {
		carry = NewCarryState()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Assembler{
		opts:      opts,
		carry:     carry,
		snapshots: make(map[time.Time]*CarryState),
	}
}

// State returns the final carry state after Assemble.
func (a *Assembler) State() *CarryState {
	return a.carry
}

// Snapshots returns, per folded day, the carry state of each pair as of
// the end of that day. A pair appears under a date only when its state
// changed that day, so the snapshot to seed a later run from is the
// pair's most recent entry dated strictly before the run window.
func (a *Assembler) Snapshots() map[time.Time]*CarryState {
	return a.snapshots
}

// snapshotFor must be called with the assembler's merge mutex held.
func (a *Assembler) snapshotFor(day time.Time) *CarryState {
	snap, ok := a.snapshots[day]
	if !ok {
		snap = NewCarryState()
		a.snapshots[day] = snap
	}
	return snap
}

// Assemble outer-joins the three rollups on (id_product, id_store,
// target_date) and produces one fact row per key present in at least one
// of them (left-join-with-zero-fill: a product with a delivery but no
// sale still appears). Non-fatal findings go to the reporter.
func (a *Assembler) Assemble(sales, returns, deliveries []model.DailyRollup, rep *issue.Reporter) []model.FactRow {
	rows := make(map[model.FactKey]*model.FactRow)

	get := func(key model.FactKey) *model.FactRow {
		row, ok := rows[key]
		if !ok {
			row = &model.FactRow{
				CustomerID: a.opts.CustomerID,
				IDProduct:  key.IDProduct,
				IDStore:    key.IDStore,
				TargetDate: key.TargetDate,
			}
			rows[key] = row
		}
		return row
	}

	salesAmount := make(map[model.FactKey]decimal.NullDecimal)
	for _, r := range sales {
		row := get(r.Key())
		row.SalesQty = row.SalesQty.Add(r.Qty)
		if r.Amount.Valid {
			salesAmount[r.Key()] = r.Amount
		}
	}
	for _, r := range returns {
		row := get(r.Key())
		row.ReturnQty = row.ReturnQty.Add(r.Qty)
	}
	for _, r := range deliveries {
		row := get(r.Key())
		row.DeliveryQty = row.DeliveryQty.Add(r.Qty)
	}

	converted := a.convertedInflows(deliveries)

	// Group per pair, chronologically.
	byPair := make(map[model.PairKey][]*model.FactRow)
	for _, row := range rows {
		byPair[row.Key().Pair()] = append(byPair[row.Key().Pair()], row)
	}
	pairs := make([]model.PairKey, 0, len(byPair))
	for pair := range byPair {
		sort.Slice(byPair[pair], func(i, j int) bool {
			return byPair[pair][i].TargetDate.Before(byPair[pair][j].TargetDate)
		})
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].IDStore != pairs[j].IDStore {
			return pairs[i].IDStore < pairs[j].IDStore
		}
		return pairs[i].IDProduct < pairs[j].IDProduct
	})

	if a.opts.DenseCalendar {
		for _, pair := range pairs {
			byPair[pair] = denseCalendar(a.opts.CustomerID, pair, byPair[pair])
		}
	}

	// Price resolution is part of the same sequential pass; the fold
	// across different pairs is independent and runs on a bounded worker
	// pool.
	var wg sync.WaitGroup
	sem := make(chan struct{}, a.opts.Workers)
	var mu sync.Mutex
	for _, pair := range pairs {
		// Seed the fold from the carry state before launching: the
		// goroutines only touch the shared maps under the mutex.
		priceSeed, hasPriceSeed := a.carry.Price[pair]
		state := pairState{ObservedDays: a.carry.ObservedDays[pair]}
		if vs, ok := a.carry.VirtualStock[pair]; ok {
			state.VirtualStock = vs
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pair model.PairKey, priceSeed decimal.Decimal, hasPriceSeed bool, state pairState) {
			defer wg.Done()
			defer func() { <-sem }()

			pairRows := byPair[pair]
			price, hasPrice := resolvePrices(pairRows, salesAmount, priceSeed, hasPriceSeed)

			state, trail := stockoutFold(pairRows, converted[pair], state,
				a.opts.WarmupDays, a.opts.CustomerID, rep)

			mu.Lock()
			if hasPrice {
				a.carry.Price[pair] = price
			}
			a.carry.VirtualStock[pair] = state.VirtualStock
			a.carry.ObservedDays[pair] = state.ObservedDays

			// Date-scoped snapshots. The carry price as of a trail date
			// is the price of the last row on or before it.
			carryPrice, hasCarryPrice := priceSeed, hasPriceSeed
			ri := 0
			for _, ds := range trail {
				for ri < len(pairRows) && !pairRows[ri].TargetDate.After(ds.Date) {
					if pairRows[ri].Price.Valid {
						carryPrice, hasCarryPrice = pairRows[ri].Price.Decimal, true
					}
					ri++
				}
				snap := a.snapshotFor(ds.Date)
				if hasCarryPrice {
					snap.Price[pair] = carryPrice
				}
				snap.VirtualStock[pair] = ds.State.VirtualStock
				snap.ObservedDays[pair] = ds.State.ObservedDays
			}
			mu.Unlock()
		}(pair, priceSeed, hasPriceSeed, state)
	}
	wg.Wait()

	out := make([]model.FactRow, 0, len(rows))
	for _, pair := range pairs {
		for _, row := range byPair[pair] {
			out = append(out, *row)
		}
	}
	return out
}

// resolvePrices walks one pair's rows in date order. The day's price is
// amount/qty when a sale with an amount happened; otherwise the most
// recent prior price carries forward; before any observation it stays
// null. Returns the final carry price for the pair.
func resolvePrices(pairRows []*model.FactRow, salesAmount map[model.FactKey]decimal.NullDecimal,
	carry decimal.Decimal, hasCarry bool) (decimal.Decimal, bool) {

	for _, row := range pairRows {
		if row.SalesQty.IsPositive() {
			if amount, ok := salesAmount[row.Key()]; ok && amount.Valid {
				carry = amount.Decimal.DivRound(row.SalesQty, 2)
				hasCarry = true
			}
		}
		if hasCarry {
			row.Price = decimal.NewNullDecimal(carry)
		}
	}
	return carry, hasCarry
}

// convertedInflows translates pack-SKU deliveries into dated virtual
// stock inflows for the target SKU, grouped by (target product, store)
// and sorted by date.
func (a *Assembler) convertedInflows(deliveries []model.DailyRollup) map[model.PairKey][]datedQty {
	if len(a.opts.Conversions) == 0 {
		return nil
	}
	rules := make(map[int64]Conversion, len(a.opts.Conversions))
	for _, c := range a.opts.Conversions {
		rules[c.FromProduct] = c
	}

	out := make(map[model.PairKey][]datedQty)
	for _, r := range deliveries {
		rule, ok := rules[r.IDProduct]
		if !ok {
			continue
		}
		pair := model.PairKey{IDProduct: rule.ToProduct, IDStore: r.IDStore}
		out[pair] = append(out[pair], datedQty{
			Date: r.TargetDate,
			Qty:  r.Qty.Mul(rule.Factor),
		})
	}
	for pair := range out {
		sort.Slice(out[pair], func(i, j int) bool {
			return out[pair][i].Date.Before(out[pair][j].Date)
		})
	}
	return out
}

// denseCalendar fills every calendar day between the pair's first and
// last observed date with zero-quantity rows. Opt-in; the default keeps
// the sparse-key property (no rollup entry, no fact row).
func denseCalendar(customerID string, pair model.PairKey, pairRows []*model.FactRow) []*model.FactRow {
	if len(pairRows) < 2 {
		return pairRows
	}
	present := make(map[time.Time]*model.FactRow, len(pairRows))
	for _, row := range pairRows {
		present[row.TargetDate] = row
	}

	first := pairRows[0].TargetDate
	last := pairRows[len(pairRows)-1].TargetDate
	var filled []*model.FactRow
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if row, ok := present[d]; ok {
			filled = append(filled, row)
			continue
		}
		filled = append(filled, &model.FactRow{
			CustomerID: customerID,
			IDProduct:  pair.IDProduct,
			IDStore:    pair.IDStore,
			TargetDate: d,
		})
	}
	return filled
}
