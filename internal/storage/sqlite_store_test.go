package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func TestSqliteStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "journal.db"))
	defer s.Close()

	start := time.Date(2022, 5, 6, 3, 4, 5, 0, time.UTC)

	failed := &Run{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		InputPath:  "/data/a.rcd",
		State:      "FAILED",
		TargetRA:   10.5,
		TargetDec:  19.5,
		Error:      "solver: all strategies failed",
	}
	solved := &Run{
		RunID:      "run-2",
		StartedAt:  start.Add(time.Minute),
		FinishedAt: start.Add(2 * time.Minute),
		InputPath:  "/data/b.rcd",
		FrameID:    "b-1234",
		State:      "OFFSET_COMPUTED",
		Strategy:   "remote",
		TargetRA:   10.5,
		TargetDec:  19.5,
		CentreRA:   ptr(10),
		CentreDec:  ptr(20),
		OffsetRA:   ptr(0.5),
		OffsetDec:  ptr(-0.5),
		WCS:        map[string]any{"CTYPE1": "RA---TAN-SIP", "CRVAL1": 83.822},
	}

	for _, r := range []*Run{failed, solved} {
		if _, err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	got := runs[0]
	if got.RunID != "run-2" {
		t.Fatalf("Expected newest run first, got %s", got.RunID)
	}
	if got.FrameID != "b-1234" || got.Strategy != "remote" || got.State != "OFFSET_COMPUTED" {
		t.Errorf("Unexpected run %+v", got)
	}
	if got.OffsetRA == nil || *got.OffsetRA != 0.5 || got.OffsetDec == nil || *got.OffsetDec != -0.5 {
		t.Errorf("Unexpected offset %v %v", got.OffsetRA, got.OffsetDec)
	}
	if got.SiteLatitude != nil {
		t.Errorf("Expected NULL site latitude, got %v", *got.SiteLatitude)
	}
	if !got.StartedAt.Equal(solved.StartedAt) {
		t.Errorf("Expected start %v, got %v", solved.StartedAt, got.StartedAt)
	}
	if got.WCS["CTYPE1"] != "RA---TAN-SIP" || got.WCS["CRVAL1"] != 83.822 {
		t.Errorf("Unexpected WCS keywords %v", got.WCS)
	}

	if runs[1].Error != "solver: all strategies failed" || runs[1].OffsetRA != nil {
		t.Errorf("Unexpected failed run %+v", runs[1])
	}

	limited, err := s.Runs(ctx, WithLimit(1), WithState("FAILED"))
	if err != nil {
		t.Fatalf("Runs with options failed: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != "run-1" {
		t.Errorf("Expected only the failed run, got %v", limited)
	}

	byFrame, _ := s.Runs(ctx, WithFrameID("b-1234"))
	if len(byFrame) != 1 || byFrame[0].RunID != "run-2" {
		t.Errorf("Expected only frame b-1234, got %v", byFrame)
	}
}

func TestSqliteStore_DuplicateRunID(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "journal.db"))
	defer s.Close()

	r := &Run{RunID: "same", StartedAt: time.Now(), FinishedAt: time.Now(), InputPath: "x", State: "FAILED"}
	if _, err := s.RecordRun(context.Background(), r); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if _, err := s.RecordRun(context.Background(), r); err == nil {
		t.Errorf("Expected duplicate run ID to be rejected")
	}
}
