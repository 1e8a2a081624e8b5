package main

import (
	"math/rand/v2"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func TestBuildQueries(t *testing.T) {
	cfg := Config{From: -1000, To: 1000, Variants: 9}
	queries := buildQueries(rand.New(rand.NewPCG(1, 2)), cfg, []string{"Event", "Person"}, []string{"war"})
	if len(queries) != 9 {
		t.Fatalf("got %d queries", len(queries))
	}
	var paged, excluded int
	for _, raw := range queries {
		q, err := url.ParseQuery(raw)
		if err != nil {
			t.Fatalf("bad query %q: %v", raw, err)
		}
		from, _ := strconv.ParseFloat(q.Get("from"), 64)
		to, _ := strconv.ParseFloat(q.Get("to"), 64)
		if from > to || from < cfg.From || to > cfg.To {
			t.Errorf("window %v..%v outside %v..%v", from, to, cfg.From, cfg.To)
		}
		if q.Get("page") != "" {
			paged++
			if q.Get("kind") == "" {
				t.Errorf("paged query without kind: %q", raw)
			}
		}
		if q.Get("excluded") == "war" {
			excluded++
		}
	}
	if paged != 3 || excluded != 3 {
		t.Errorf("paged=%d excluded=%d, want 3/3", paged, excluded)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 50); got != 5 {
		t.Errorf("p50 = %v", got)
	}
	if got := percentile(sorted, 99); got != 10 {
		t.Errorf("p99 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty = %v", got)
	}
}
