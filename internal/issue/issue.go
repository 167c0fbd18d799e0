//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package issue implements the recoverable-and-reported error taxonomy.
// Every kind here excludes or defaults the offending record and lets the
// run continue; nothing in this package is ever fatal.
package issue

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// Kind classifies a non-fatal pipeline issue.
type Kind string

// The five recoverable issue kinds.
const (
	ParseFailure      Kind = "parse_failure"
	UnresolvedMapping Kind = "unresolved_mapping"
	ConflictingRecord Kind = "conflicting_record"
	InventoryAnomaly  Kind = "inventory_anomaly"
	IncompleteMaster  Kind = "incomplete_master"
)

// Issue is one reported occurrence, keyed by customer/source/date for
// operational review.
type Issue struct {
	Kind       Kind
	CustomerID string
	SourceType model.SourceType
	TargetDate time.Time // zero when the issue is not date-scoped
	Detail     string
	RawValue   string // offending raw value, for parse failures
	SourceFile string
}

// Reporter collects issues for one run and emits each as a structured
// log event. It is safe for concurrent use; customers processed in
// parallel share one reporter.
type Reporter struct {
	logger zerolog.Logger

	mu     sync.Mutex
	counts map[Kind]int
	issues []Issue
	seen   map[string]bool // dedup key -> already reported
}

// NewReporter creates a reporter that logs through the given logger.
func NewReporter(logger zerolog.Logger) *Reporter {
	return &Reporter{
		logger: logger,
		counts: make(map[Kind]int),
		seen:   make(map[string]bool),
	}
}

// Report records an issue and logs it at warn level.
func (r *Reporter) Report(is Issue) {
	r.mu.Lock()
	r.counts[is.Kind]++
	r.issues = append(r.issues, is)
	r.mu.Unlock()

	ev := r.logger.Warn().
		Str("kind", string(is.Kind)).
		Str("customer_id", is.CustomerID).
		Str("source_type", string(is.SourceType))
	if !is.TargetDate.IsZero() {
		ev = ev.Str("target_date", is.TargetDate.Format(time.DateOnly))
	}
	if is.RawValue != "" {
		ev = ev.Str("raw_value", is.RawValue)
	}
	if is.SourceFile != "" {
		ev = ev.Str("source_file", is.SourceFile)
	}
	ev.Msg(is.Detail)
}

// ReportOnce records an issue at most once per dedup key. Used for
// unresolved mappings, which are reported once per (customer, number)
// no matter how many records carry the number.
func (r *Reporter) ReportOnce(key string, is Issue) {
	r.mu.Lock()
	if r.seen[key] {
		r.mu.Unlock()
		return
	}
	r.seen[key] = true
	r.mu.Unlock()
	r.Report(is)
}

// Count returns the number of issues reported for one kind.
func (r *Reporter) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[k]
}

// Total returns the number of issues reported across all kinds.
func (r *Reporter) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

// Issues returns a copy of all reported issues.
func (r *Reporter) Issues() []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Issue, len(r.issues))
	copy(out, r.issues)
	return out
}

// Summary returns per-kind counts in deterministic kind order, for the
// end-of-run report. A run is never a silent partial result: the caller
// always logs this, even when it is empty.
func (r *Reporter) Summary() map[Kind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Kind]int, len(r.counts))
	for _, k := range Kinds() {
		out[k] = r.counts[k]
	}
	return out
}

// Kinds lists all issue kinds in stable order.
func Kinds() []Kind {
	ks := []Kind{ParseFailure, UnresolvedMapping, ConflictingRecord, InventoryAnomaly, IncompleteMaster}
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}
