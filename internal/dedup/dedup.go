//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dedup implements the Deduplicator. Records with identical
// content hashes collapse to one (idempotence under re-ingestion of the
// same file); records sharing a natural key with differing payloads are
// resolved latest-ingest-wins and reported as conflicts.
package dedup

import (
	"sort"

	"github.com/pgEdge/pgedge-retailmart/internal/model"
)

// Conflict describes records sharing a natural key but differing in
// payload. The pipeline reports each as a ConflictingRecord for audit;
// the winner is already part of the returned record set.
type Conflict struct {
	CustomerID string
	SourceType model.SourceType
	NaturalKey string
	Winner     model.NormalizedRecord
	Losers     []model.NormalizedRecord
}

// Distinct collapses exact duplicates: records with identical content
// hashes are the same record and contribute once, no matter how often
// the same file was ingested. Relative input order is preserved.
func Distinct(records []model.NormalizedRecord) []model.NormalizedRecord {
	seen := make(map[string]bool, len(records))
	out := make([]model.NormalizedRecord, 0, len(records))
	for _, rec := range records {
		if seen[rec.ContentHash] {
			continue
		}
		seen[rec.ContentHash] = true
		out = append(out, rec)
	}
	return out
}

// Dedupe collapses one (customer, source_type, run) record stream.
// Hash-identical records contribute once; conflicting natural keys keep
// the latest record by ingest timestamp, tie-broken by content hash so
// the result is independent of input order.
//
// Master records are collapsed here too, but the Dimension Builder
// receives the Distinct set instead: it needs older versions for its
// required-field fallback.
func Dedupe(records []model.NormalizedRecord) ([]model.NormalizedRecord, []Conflict) {
	distinct := Distinct(records)

	// Group the survivors by natural key.
	byKey := make(map[string][]model.NormalizedRecord)
	var keyOrder []string
	for _, rec := range distinct {
		k := rec.NaturalKey()
		if _, ok := byKey[k]; !ok {
			keyOrder = append(keyOrder, k)
		}
		byKey[k] = append(byKey[k], rec)
	}

	var out []model.NormalizedRecord
	var conflicts []Conflict
	for _, k := range keyOrder {
		group := byKey[k]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			if !group[i].IngestTS.Equal(group[j].IngestTS) {
				return group[i].IngestTS.After(group[j].IngestTS)
			}
			return group[i].ContentHash > group[j].ContentHash
		})

		winner := group[0]
		out = append(out, winner)
		conflicts = append(conflicts, Conflict{
			CustomerID: winner.CustomerID,
			SourceType: winner.SourceType,
			NaturalKey: k,
			Winner:     winner,
			Losers:     group[1:],
		})
	}

	return out, conflicts
}
