//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package normalize implements the Record Normalizer: it renames raw
// fields to canonical names per the customer's field map, coerces types
// (including decimal-comma normalization) and attaches provenance.
// It never looks across records.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retailmart/internal/config"
	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// RawRecord is one decoded row from a source extract, as delivered by a
// source adapter: source column name -> raw string value, plus the
// source location for rejections.
type RawRecord struct {
	Fields     map[string]string
	SourceFile string
	Line       int
}

// ParseError is a per-record rejection. The record is excluded from
// downstream processing; the run continues.
type ParseError struct {
	Field      string
	RawValue   string
	SourceFile string
	Line       int
	Reason     string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q (%s, %s:%d)", e.Reason, e.RawValue, e.Field, e.SourceFile, e.Line)
}

// dateLayouts are accepted in order. Source extracts use ISO dates or
// the German day-first form.
var dateLayouts = []string{
	time.DateOnly,
	"02.01.2006",
	time.RFC3339,
}

// postalCityRe matches the "PLZ Stadt" line of a multiline address.
var postalCityRe = regexp.MustCompile(`^(\d{4,5})\s+(.+)$`)

// Normalizer turns raw records of one customer into NormalizedRecords.
type Normalizer struct {
	customer config.CustomerConfig
	ingestTS time.Time
}

// New creates a normalizer for one customer and one run. All records of
// the run share a single ingest timestamp, mirroring the batch merge
// semantics of the mart.
func New(customer config.CustomerConfig, ingestTS time.Time) *Normalizer {
	return &Normalizer{customer: customer, ingestTS: ingestTS.UTC()}
}

// Normalize converts one raw record of the given source type. On
// failure it returns a *ParseError naming the offending raw value and
// source location.
func (n *Normalizer) Normalize(st model.SourceType, raw RawRecord) (model.NormalizedRecord, error) {
	if !st.Valid() {
		return model.NormalizedRecord{}, &ParseError{
			SourceFile: raw.SourceFile, Line: raw.Line,
			Reason: fmt.Sprintf("unknown source type %q", st),
		}
	}

	rec := model.NormalizedRecord{
		SourceType: st,
		CustomerID: n.customer.ID,
		IngestTS:   n.ingestTS,
		SourceFile: raw.SourceFile,
	}

	var err error
	switch {
	case st.IsEvent():
		err = n.normalizeEvent(st, raw, &rec)
	case st == model.SourceProducts:
		err = n.normalizeProduct(raw, &rec)
	default:
		err = n.normalizeStore(raw, &rec)
	}
	if err != nil {
		return model.NormalizedRecord{}, err
	}

	rec.ContentHash = contentHash(&rec)
	return rec, nil
}

func (n *Normalizer) normalizeEvent(st model.SourceType, raw RawRecord, rec *model.NormalizedRecord) error {
	rec.NumberProduct = n.lookup(st, "product", raw)
	rec.NumberStore = n.lookup(st, "store", raw)
	if rec.NumberProduct == "" {
		return n.fail(st, "product", raw, "missing product number")
	}
	if rec.NumberStore == "" {
		return n.fail(st, "store", raw, "missing store number")
	}

	rawDate := n.lookup(st, "date", raw)
	day, err := parseDate(rawDate)
	if err != nil {
		return n.fail(st, "date", raw, "unparseable date")
	}
	rec.TargetDate = day

	// Blank quantity cells mean zero, not rejection.
	qty, err := ParseDecimal(n.lookup(st, "qty", raw))
	if err != nil {
		return n.fail(st, "qty", raw, "non-numeric quantity")
	}
	rec.Qty = qty

	if st == model.SourceSales {
		if rawAmount := n.lookup(st, "amount", raw); rawAmount != "" {
			amount, err := ParseDecimal(rawAmount)
			if err != nil {
				return n.fail(st, "amount", raw, "non-numeric amount")
			}
			rec.Amount = decimal.NewNullDecimal(amount)
		}
	}
	return nil
}

func (n *Normalizer) normalizeProduct(raw RawRecord, rec *model.NormalizedRecord) error {
	st := model.SourceProducts
	rec.NumberProduct = n.lookup(st, "product", raw)
	if rec.NumberProduct == "" {
		return n.fail(st, "product", raw, "missing product number")
	}
	rec.ProductName = n.lookup(st, "name", raw)
	rec.ProductGroup = n.lookup(st, "group", raw)

	if rawPrice := n.lookup(st, "price", raw); rawPrice != "" {
		price, err := ParseDecimal(rawPrice)
		if err != nil {
			return n.fail(st, "price", raw, "non-numeric price")
		}
		rec.Price = decimal.NewNullDecimal(price)
	}

	if rawMOQ := n.lookup(st, "moq", raw); rawMOQ != "" {
		moq, err := strconv.Atoi(strings.TrimSpace(rawMOQ))
		if err != nil {
			return n.fail(st, "moq", raw, "non-numeric moq")
		}
		rec.MOQ = moq
	}
	return nil
}

func (n *Normalizer) normalizeStore(raw RawRecord, rec *model.NormalizedRecord) error {
	st := model.SourceStores
	rec.NumberStore = n.lookup(st, "store", raw)
	if rec.NumberStore == "" {
		return n.fail(st, "store", raw, "missing store number")
	}
	rec.StoreName = n.lookup(st, "name", raw)

	if addr := n.lookup(st, "address_multiline", raw); addr != "" {
		street, postal, city, country := ParseMultilineAddress(addr)
		rec.Street, rec.PostalCode, rec.City, rec.Country = street, postal, city, country
	} else {
		rec.Street = n.lookup(st, "street", raw)
		rec.PostalCode = n.lookup(st, "postal_code", raw)
		rec.City = n.lookup(st, "city", raw)
		rec.Country = n.lookup(st, "country", raw)
		rec.State = n.lookup(st, "state", raw)
	}
	return nil
}

// lookup resolves a canonical field through the customer's field map and
// returns the trimmed raw value, or "" when unmapped or absent.
func (n *Normalizer) lookup(st model.SourceType, canonical string, raw RawRecord) string {
	fields, ok := n.customer.Fields[string(st)]
	if !ok {
		return ""
	}
	src, ok := fields[canonical]
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw.Fields[src])
}

func (n *Normalizer) fail(st model.SourceType, canonical string, raw RawRecord, reason string) *ParseError {
	field := canonical
	if fields, ok := n.customer.Fields[string(st)]; ok {
		if src, ok := fields[canonical]; ok {
			field = src
		}
	}
	return &ParseError{
		Field:      field,
		RawValue:   raw.Fields[field],
		SourceFile: raw.SourceFile,
		Line:       raw.Line,
		Reason:     reason,
	}
}

// ParseDecimal parses a numeric cell into a canonical decimal. Blank
// cells are zero. Locale-specific decimal commas are normalized, with or
// without thousands dots ("1.234,56" and "12,5" both parse).
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}

// parseDate parses a raw date cell into a UTC calendar day.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %s", s)
}

// ParseMultilineAddress splits a galaxy-style multiline address block
// into street, postal code, city and country. The first line is the
// street, a "PLZ Stadt" line yields postal code and city, and the last
// line is the country when the block has at least two lines.
func ParseMultilineAddress(addr string) (street, postal, city, country string) {
	var lines []string
	for _, ln := range strings.Split(addr, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		return "", "", "", ""
	}
	street = lines[0]
	for _, ln := range lines {
		if m := postalCityRe.FindStringSubmatch(ln); m != nil {
			postal, city = m[1], m[2]
			break
		}
	}
	if len(lines) >= 2 {
		country = lines[len(lines)-1]
	}
	return street, postal, city, country
}

// contentHash fingerprints the canonical payload of a record. Provenance
// fields (ingest timestamp, source file) are excluded so that re-ingesting
// the same file yields the same hash.
func contentHash(rec *model.NormalizedRecord) string {
	parts := map[string]string{
		"source_type":    string(rec.SourceType),
		"customer_id":    rec.CustomerID,
		"number_product": rec.NumberProduct,
		"number_store":   rec.NumberStore,
		"qty":            rec.Qty.String(),
		"product_name":   rec.ProductName,
		"product_group":  rec.ProductGroup,
		"moq":            strconv.Itoa(rec.MOQ),
		"store_name":     rec.StoreName,
		"street":         rec.Street,
		"postal_code":    rec.PostalCode,
		"city":           rec.City,
		"country":        rec.Country,
		"state":          rec.State,
	}
	if !rec.TargetDate.IsZero() {
		parts["target_date"] = rec.TargetDate.Format(time.DateOnly)
	}
	if rec.Amount.Valid {
		parts["amount"] = rec.Amount.Decimal.String()
	}
	if rec.Price.Valid {
		parts["price"] = rec.Price.Decimal.String()
	}

	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, parts[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
