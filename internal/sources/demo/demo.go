//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package demo implements a generated source adapter for the three demo
// customers. Two customers deliver cosmos-style extracts with German
// column names, day-first dates and decimal commas; the third delivers
// galaxy-style extracts with multiline address blocks. Output is
// deterministic per (seed, customer, source type, date).
package demo

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-retailmart/internal/datagen"
	"github.com/pgEdge/pgedge-retailmart/internal/identity"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
	"github.com/pgEdge/pgedge-retailmart/internal/normalize"
	"github.com/pgEdge/pgedge-retailmart/internal/sources"
)

func init() {
	sources.Register(&DemoSource{})
}

// catalogEntry is one product of a demo customer's assortment. Pack
// SKUs appear in deliveries only.
type catalogEntry struct {
	number   string
	packOnly bool
}

// demo assortments and store fleets, keyed by ERP flavor. Customer 1001
// additionally receives the pack SKU 9001 (a crate of twelve 4711).
var (
	cosmosProducts = []catalogEntry{
		{number: "4711"}, {number: "4712"}, {number: "4713"},
	}
	cosmosPackProducts = []catalogEntry{
		{number: "9001", packOnly: true},
	}
	cosmosStores = []string{"101", "102"}

	galaxyProducts = []catalogEntry{
		{number: "A-100"}, {number: "A-200"}, {number: "A-300"},
	}
	galaxyStores = []string{"F1", "F2"}
)

// SeedMappings returns the identity mappings matching the demo
// assortments, for init --seed. Customers 1001 and 1002 sell the same
// catalog and share global product ids; stores are distinct per
// customer.
func SeedMappings() (products, stores []identity.Mapping) {
	for _, cust := range []string{"1001", "1002"} {
		products = append(products,
			identity.Mapping{CustomerID: cust, NumberLocal: "4711", IDGlobal: 10001},
			identity.Mapping{CustomerID: cust, NumberLocal: "4712", IDGlobal: 10002},
			identity.Mapping{CustomerID: cust, NumberLocal: "4713", IDGlobal: 10003},
		)
	}
	products = append(products,
		identity.Mapping{CustomerID: "1001", NumberLocal: "9001", IDGlobal: 10004},
		identity.Mapping{CustomerID: "1003", NumberLocal: "A-100", IDGlobal: 10001},
		identity.Mapping{CustomerID: "1003", NumberLocal: "A-200", IDGlobal: 10002},
		identity.Mapping{CustomerID: "1003", NumberLocal: "A-300", IDGlobal: 10003},
	)
	stores = []identity.Mapping{
		{CustomerID: "1001", NumberLocal: "101", IDGlobal: 501},
		{CustomerID: "1001", NumberLocal: "102", IDGlobal: 502},
		{CustomerID: "1002", NumberLocal: "101", IDGlobal: 503},
		{CustomerID: "1002", NumberLocal: "102", IDGlobal: 504},
		{CustomerID: "1003", NumberLocal: "F1", IDGlobal: 505},
		{CustomerID: "1003", NumberLocal: "F2", IDGlobal: 506},
	}
	return products, stores
}

// DemoSource generates demo extracts in memory.
type DemoSource struct{}

// Name returns the adapter name.
func (s *DemoSource) Name() string {
	return "demo"
}

// Description returns a human-readable description.
func (s *DemoSource) Description() string {
	return "Generated extracts for the three demo customers"
}

// Fetch generates the decoded rows of one extract.
func (s *DemoSource) Fetch(_ context.Context, req sources.Request) ([]normalize.RawRecord, error) {
	switch req.Customer.ERP {
	case "cosmos", "galaxy":
	default:
		return nil, fmt.Errorf("demo source has no %s extracts", req.Customer.ERP)
	}

	if !req.Source.IsEvent() {
		return s.masterRows(req), nil
	}

	var out []normalize.RawRecord
	for day := model.Day(req.From); !day.After(model.Day(req.To)); day = day.AddDate(0, 0, 1) {
		out = append(out, s.eventRows(req, day)...)
	}
	return out, nil
}

// faker derives a deterministic generator for one extract slice. A zero
// seed falls back to wall-clock randomness.
func faker(seed uint64, parts ...string) *datagen.Faker {
	if seed == 0 {
		return datagen.NewFaker()
	}
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
	}
	return datagen.NewFakerWithSeed(seed ^ h.Sum64())
}

func (s *DemoSource) eventRows(req sources.Request, day time.Time) []normalize.RawRecord {
	cust := req.Customer
	f := faker(req.Seed, cust.ID, string(req.Source), day.Format(time.DateOnly))
	file := fmt.Sprintf("demo://%s/%s/%s", cust.ID, req.Source, day.Format(time.DateOnly))

	products := cosmosProducts
	stores := cosmosStores
	if cust.ERP == "galaxy" {
		products = galaxyProducts
		stores = galaxyStores
	}
	if req.Source == model.SourceDeliveries && cust.ID == "1001" {
		products = append(append([]catalogEntry{}, products...), cosmosPackProducts...)
	}

	var out []normalize.RawRecord
	line := 0
	for _, store := range stores {
		for _, p := range products {
			qty, amount := s.quantities(req.Source, p, f)
			if qty == 0 {
				continue
			}
			line++
			out = append(out, normalize.RawRecord{
				Fields:     s.eventFields(cust.ERP, req.Source, day, store, p.number, qty, amount),
				SourceFile: file,
				Line:       line,
			})
		}
	}
	return out
}

// quantities rolls the per-row quantity and, for sales, the line amount.
// Sales are sparse, returns rare, deliveries arrive in bursts.
func (s *DemoSource) quantities(st model.SourceType, p catalogEntry, f *datagen.Faker) (int, float64) {
	switch st {
	case model.SourceSales:
		if p.packOnly || f.Int(0, 9) < 3 {
			return 0, 0
		}
		qty := f.Int(1, 30)
		return qty, float64(qty) * f.Price(0.5, 20.0)
	case model.SourceReturns:
		if p.packOnly || f.Int(0, 9) > 0 {
			return 0, 0
		}
		return f.Int(1, 3), 0
	case model.SourceDeliveries:
		if f.Int(0, 9) > 2 {
			return 0, 0
		}
		if p.packOnly {
			return f.Int(1, 3), 0
		}
		return f.Int(6, 48), 0
	}
	return 0, 0
}

func (s *DemoSource) eventFields(erp string, st model.SourceType, day time.Time,
	store, product string, qty int, amount float64) map[string]string {

	if erp == "galaxy" {
		fields := map[string]string{
			"Datum":         day.Format(time.DateOnly),
			"FilialNummer":  store,
			"ArtikelNummer": product,
		}
		switch st {
		case model.SourceSales:
			fields["VerkaufsMenge"] = strconv.Itoa(qty)
			fields["VerkaufsBetrag"] = strconv.FormatFloat(amount, 'f', 2, 64)
		case model.SourceReturns:
			fields["RetourenMenge"] = strconv.Itoa(qty)
		case model.SourceDeliveries:
			fields["LieferMenge"] = strconv.Itoa(qty)
		}
		return fields
	}

	fields := map[string]string{
		"Datum":   day.Format("02.01.2006"),
		"Kunde":   store,
		"Artikel": product,
	}
	switch st {
	case model.SourceSales:
		fields["VK-Menge"] = strconv.Itoa(qty)
		fields["VK-Betrag"] = germanDecimal(amount)
	case model.SourceReturns:
		fields["RG-Menge"] = strconv.Itoa(qty)
	case model.SourceDeliveries:
		fields["Liefermenge"] = strconv.Itoa(qty)
		fields["Charge"] = fmt.Sprintf("CH-%s-%s", day.Format("20060102"), product)
	}
	return fields
}

// germanDecimal renders an amount with a decimal comma, the way cosmos
// extracts ship numbers.
func germanDecimal(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}

func (s *DemoSource) masterRows(req sources.Request) []normalize.RawRecord {
	cust := req.Customer
	// Masters are seeded by customer and source type only, so every run
	// regenerates identical catalog rows and dedup collapses them.
	f := faker(req.Seed, cust.ID, string(req.Source))
	file := fmt.Sprintf("demo://%s/%s/catalog", cust.ID, req.Source)

	var out []normalize.RawRecord
	if req.Source == model.SourceProducts {
		products := cosmosProducts
		if cust.ERP == "galaxy" {
			products = galaxyProducts
		} else if cust.ID == "1001" {
			products = append(append([]catalogEntry{}, products...), cosmosPackProducts...)
		}
		for i, p := range products {
			out = append(out, normalize.RawRecord{
				Fields:     s.productFields(cust.ERP, p, f),
				SourceFile: file,
				Line:       i + 1,
			})
		}
		return out
	}

	storeNumbers := cosmosStores
	if cust.ERP == "galaxy" {
		storeNumbers = galaxyStores
	}
	for i, number := range storeNumbers {
		out = append(out, normalize.RawRecord{
			Fields:     s.storeFields(cust.ERP, number, f),
			SourceFile: file,
			Line:       i + 1,
		})
	}
	return out
}

func (s *DemoSource) productFields(erp string, p catalogEntry, f *datagen.Faker) map[string]string {
	name := f.ProductName()
	group := f.ProductCategory()
	price := f.Price(0.5, 20.0)
	moq := datagen.Choose(f, []int{1, 6, 12})

	if erp == "galaxy" {
		return map[string]string{
			"ArtikelNummer": p.number,
			"ArtikelName":   name,
			"ArtikelGruppe": group,
			"ArtikelPreis":  strconv.FormatFloat(price, 'f', 2, 64),
			"MindestMenge":  strconv.Itoa(moq),
		}
	}
	return map[string]string{
		"Artikel":             p.number,
		"Bezeichnung":         name,
		"Warengruppe":         group,
		"Preis":               germanDecimal(price),
		"Mindestbestellmenge": strconv.Itoa(moq),
	}
}

func (s *DemoSource) storeFields(erp, number string, f *datagen.Faker) map[string]string {
	street := f.Street()
	city := f.City()
	postal := f.Zip()
	name := f.Company()

	if erp == "galaxy" {
		return map[string]string{
			"FilialNummer": number,
			"FilialName":   name,
			"Anschrift":    street + "\n" + postal + " " + city + "\nDeutschland",
		}
	}
	return map[string]string{
		"Kunde":      number,
		"Name":       name,
		"Strasse":    street,
		"PLZ":        postal,
		"Ort":        city,
		"Land":       "Deutschland",
		"Bundesland": "Bayern",
	}
}
