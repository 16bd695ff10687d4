package main

import (
	"context"
	"testing"
	"time"

	"github.com/dray-io/windowkv/internal/substrate"
	"github.com/dray-io/windowkv/internal/windowstore"
)

func TestBenchWorkload(t *testing.T) {
	s, err := windowstore.Open(context.Background(), substrate.NewMemory(), windowstore.Options{
		Name:            "bench",
		RetentionPeriod: 10 * time.Minute,
		WindowSize:      time.Minute,
		NumSegments:     3,
		EnableCaching:   true,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	res, err := bench(s, benchParams{
		Keys:        10,
		Writes:      500,
		ValueSize:   16,
		FetchEvery:  50,
		WindowMs:    60000,
		RetentionMs: 600000,
		Seed:        1,
	})
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	if res.Puts != 500 {
		t.Errorf("puts = %d, want 500", res.Puts)
	}
	if res.Fetches != 10 {
		t.Errorf("fetches = %d, want 10", res.Fetches)
	}
	if res.FetchedRows == 0 {
		t.Error("expected fetches to return rows")
	}
}

func TestBenchKeyStable(t *testing.T) {
	if got := string(benchKey(7)); got != "key-000007" {
		t.Errorf("benchKey(7) = %q", got)
	}
}
