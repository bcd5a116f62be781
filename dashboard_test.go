package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"qbrreport/dataset"
	"qbrreport/narrative"
)

func TestDashboardNilSafe(t *testing.T) {
	var d *dashboard
	d.Observe(narrative.Outcome{Source: narrative.SourceLLM})
	d.SetDataset(&dataset.Dataset{})
	d.WriteLine("hello", time.Now())
	d.Stop()
	if newDashboard(false, "dev", ":8000") != nil {
		t.Fatalf("expected disabled dashboard to be nil")
	}
}

func TestAppendBounded(t *testing.T) {
	var buf []string
	for i := 0; i < 5; i++ {
		buf = appendBounded(buf, string(rune('a'+i)), 3)
	}
	if strings.Join(buf, "") != "cde" {
		t.Fatalf("expected last three lines, got %q", buf)
	}
}

func TestFormatOutcome(t *testing.T) {
	o := narrative.Outcome{
		EntityID:    "h-1",
		EntityKind:  dataset.KindHotel,
		CurrentKey:  "2025-Q3",
		PreviousKey: "2025-Q2",
		Source:      narrative.SourceFallback,
		Failure:     narrative.FailureMalformed,
		Err:         errors.New("missing headline"),
		Duration:    1234567 * time.Microsecond,
	}
	if got := formatOutcome(o); got != "hotel h-1 2025-Q3 vs 2025-Q2 fallback 1.235s" {
		t.Fatalf("unexpected outcome line %q", got)
	}
	if got := formatFailure(o); got != "hotel h-1 2025-Q3 malformed: missing headline" {
		t.Fatalf("unexpected failure line %q", got)
	}
	o.PreviousKey = ""
	if got := formatOutcome(o); !strings.Contains(got, "vs - ") {
		t.Fatalf("expected placeholder for missing previous key, got %q", got)
	}
}

func TestStatsLines(t *testing.T) {
	start := time.Date(2025, time.October, 3, 12, 0, 0, 0, time.UTC)
	s := dashboardStats{
		Version:    "1.2.0",
		Listen:     ":8000",
		Started:    start,
		Properties: 2,
		Quarter:    "2025-Q3",
		Sources:    map[narrative.Source]int{narrative.SourceLLM: 4, narrative.SourceFallback: 1},
		Failures:   map[narrative.FailureKind]int{narrative.FailureStatus: 1, narrative.FailureEmpty: 2},
	}
	lines := statsLines(s, start.Add(90*time.Second+400*time.Millisecond))
	want := []string{
		"QBR narrative service 1.2.0  listening :8000  up 1m30s",
		"Dataset: 2 properties, current quarter 2025-Q3",
		"Hydrations: llm=4 fallback=1",
		"Failures: empty=2 status=1",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected stats:\n%s", strings.Join(lines, "\n"))
	}

	empty := statsLines(dashboardStats{}, start)
	if !strings.Contains(empty[1], "none loaded") || empty[3] != "Failures: none" {
		t.Fatalf("unexpected empty stats %q", empty)
	}
}
