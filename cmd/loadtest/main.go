// Command loadtest drives GET /api/v1/subjects/layout with a mix of windows,
// kinds, pages and exclusions and prints a latency report.
//
// The query mix is built from the kinds and categories the target service
// reports, so it exercises both cache hits (repeated queries) and misses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	From        float64
	To          float64
	Variants    int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the timeline service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	from := flag.Float64("from", -3000, "earliest window start")
	to := flag.Float64("to", 2100, "latest window end")
	variants := flag.Int("variants", 50, "distinct queries in the mix")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		From:        *from,
		To:          *to,
		Variants:    *variants,
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var kinds, categories []string
	if err := fetchList(client, cfg.BaseURL+"/api/v1/kinds", "kinds", &kinds); err != nil {
		fmt.Fprintf(os.Stderr, "listing kinds: %v\n", err)
		os.Exit(1)
	}
	if err := fetchList(client, cfg.BaseURL+"/api/v1/categories", "categories", &categories); err != nil {
		fmt.Fprintf(os.Stderr, "listing categories: %v\n", err)
		os.Exit(1)
	}
	queries := buildQueries(rand.New(rand.NewPCG(1, 2)), cfg, kinds, categories)

	fmt.Println("=== Timeline Layout Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Kinds:       %d\n", len(kinds))
	fmt.Printf("Queries:     %d unique\n", len(queries))
	fmt.Println()

	stats := runLoadTest(client, cfg, queries)
	printReport(stats, cfg.Duration)
}

func fetchList(client *http.Client, rawURL, field string, out *[]string) error {
	resp, err := client.Get(rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	*out = body[field]
	return nil
}

// buildQueries returns n layout query strings. Roughly a third ask for every
// kind, a third for one page of one kind, and the rest exclude a category.
func buildQueries(rng *rand.Rand, cfg Config, kinds, categories []string) []string {
	n := max(cfg.Variants, 1)
	span := cfg.To - cfg.From
	queries := make([]string, 0, n)
	for i := 0; i < n; i++ {
		q := url.Values{}
		start := cfg.From + rng.Float64()*span/2
		q.Set("from", strconv.FormatFloat(math.Round(start), 'f', -1, 64))
		q.Set("to", strconv.FormatFloat(math.Round(start+span/2), 'f', -1, 64))
		switch {
		case i%3 == 1 && len(kinds) > 0:
			q.Set("kind", kinds[rng.IntN(len(kinds))])
			q.Set("page", strconv.Itoa(1+rng.IntN(2)))
		case i%3 == 2 && len(categories) > 0:
			q.Set("excluded", categories[rng.IntN(len(categories))])
		}
		queries = append(queries, q.Encode())
	}
	return queries
}

func runLoadTest(client *http.Client, cfg Config, queries []string) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			idx := workerID
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				layoutURL := cfg.BaseURL + "/api/v1/subjects/layout?" + queries[idx%len(queries)]
				idx++

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, layoutURL, nil)
				if err != nil {
					stats.RecordRequest(0, 0, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(duration, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", failed)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
