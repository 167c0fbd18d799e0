//-------------------------------------------------------------------------
//
// pgEdge Retail Mart Pipeline
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package issue

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestReporterCounts(t *testing.T) {
	rep := NewReporter(zerolog.Nop())
	rep.Report(Issue{Kind: ParseFailure, CustomerID: "1001"})
	rep.Report(Issue{Kind: ParseFailure, CustomerID: "1001"})
	rep.Report(Issue{Kind: ConflictingRecord, CustomerID: "1002"})

	if got := rep.Count(ParseFailure); got != 2 {
		t.Errorf("Count(ParseFailure) = %d, want 2", got)
	}
	if got := rep.Total(); got != 3 {
		t.Errorf("Total() = %d, want 3", got)
	}
	if got := len(rep.Issues()); got != 3 {
		t.Errorf("Issues() length = %d, want 3", got)
	}
}

func TestReportOnceDeduplicates(t *testing.T) {
	rep := NewReporter(zerolog.Nop())
	for i := 0; i < 5; i++ {
		rep.ReportOnce("1001|product|9999", Issue{Kind: UnresolvedMapping, CustomerID: "1001"})
	}
	rep.ReportOnce("1001|product|8888", Issue{Kind: UnresolvedMapping, CustomerID: "1001"})

	if got := rep.Count(UnresolvedMapping); got != 2 {
		t.Errorf("Expected one issue per distinct key, got %d", got)
	}
}

func TestSummaryCoversAllKinds(t *testing.T) {
	rep := NewReporter(zerolog.Nop())
	rep.Report(Issue{Kind: InventoryAnomaly})

	sum := rep.Summary()
	if sum[InventoryAnomaly] != 1 {
		t.Errorf("Summary missing reported kind: %v", sum)
	}
	for _, k := range Kinds() {
		if _, ok := sum[k]; !ok {
			t.Errorf("Summary must list kind %s even at zero", k)
		}
	}
}

func TestReporterConcurrent(t *testing.T) {
	rep := NewReporter(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rep.Report(Issue{Kind: ParseFailure})
				rep.ReportOnce("shared", Issue{Kind: UnresolvedMapping})
			}
		}()
	}
	wg.Wait()

	if got := rep.Count(ParseFailure); got != 1000 {
		t.Errorf("Count(ParseFailure) = %d, want 1000", got)
	}
	if got := rep.Count(UnresolvedMapping); got != 1 {
		t.Errorf("Count(UnresolvedMapping) = %d, want 1", got)
	}
}
