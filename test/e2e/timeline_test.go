// Package e2e exercises a running timeline service over HTTP.
//
// Start the stack (PostgreSQL, Redis, Kafka, cmd/timeline) and seed it with
// timelinectl import before running:
//
//	go test -v ./test/e2e/...
//
// Tests skip when the service is unreachable.
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var client = &http.Client{Timeout: 10 * time.Second}

func baseURL() string {
	if v := os.Getenv("E2E_TIMELINE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func skipIfUnavailable(t *testing.T) {
	t.Helper()
	resp, err := client.Get(baseURL() + "/health/live")
	if err != nil {
		t.Skipf("skipping e2e test: timeline service unavailable at %s: %v", baseURL(), err)
	}
	resp.Body.Close()
}

func getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := client.Get(baseURL() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decoding %s: %v (%s)", path, err, body)
		}
	}
	return resp.StatusCode
}

type kindResult struct {
	Categories []string                     `json:"categories"`
	Pages      [][][]map[string]any `json:"pages"`
	Page       int                          `json:"page"`
	Count      int                          `json:"count"`
	TotalPages int                          `json:"totalPages"`
}

func TestHealth(t *testing.T) {
	skipIfUnavailable(t)
	var report struct {
		Status string `json:"status"`
	}
	if code := getJSON(t, "/health/ready", &report); code != http.StatusOK {
		t.Fatalf("ready status = %d", code)
	}
	if report.Status == "" {
		t.Error("readiness report has no status")
	}
}

func TestLayoutEveryKind(t *testing.T) {
	skipIfUnavailable(t)

	var kinds struct {
		Kinds []string `json:"kinds"`
	}
	if code := getJSON(t, "/api/v1/kinds", &kinds); code != http.StatusOK {
		t.Fatalf("kinds status = %d", code)
	}

	var res map[string]kindResult
	if code := getJSON(t, "/api/v1/subjects/layout", &res); code != http.StatusOK {
		t.Fatalf("layout status = %d", code)
	}
	for _, k := range kinds.Kinds {
		r, ok := res[k]
		if !ok {
			t.Errorf("kind %q missing from layout", k)
			continue
		}
		if r.Count != len(r.Pages) || r.TotalPages < r.Count {
			t.Errorf("kind %q: count=%d pages=%d total=%d", k, r.Count, len(r.Pages), r.TotalPages)
		}
	}
}

func TestLayoutPageOutOfRange(t *testing.T) {
	skipIfUnavailable(t)

	var kinds struct {
		Kinds []string `json:"kinds"`
	}
	getJSON(t, "/api/v1/kinds", &kinds)
	if len(kinds.Kinds) == 0 {
		t.Skip("no subjects imported")
	}

	var res map[string]kindResult
	code := getJSON(t, "/api/v1/subjects/layout?kind="+kinds.Kinds[0]+"&page=100000", &res)
	if code != http.StatusOK {
		t.Fatalf("layout status = %d", code)
	}
	if r := res[kinds.Kinds[0]]; len(r.Pages) != 0 || r.Count != 0 {
		t.Errorf("out of range page returned %d pages", len(r.Pages))
	}
}

func TestLayoutValidation(t *testing.T) {
	skipIfUnavailable(t)
	for _, q := range []string{"page=0", "from=10&to=1", "from=abc"} {
		if code := getJSON(t, "/api/v1/subjects/layout?"+q, nil); code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, code)
		}
	}
	if code := getJSON(t, "/api/v1/subjects/layout?kind=NoSuchKind", nil); code != http.StatusNotFound {
		t.Errorf("unknown kind: status = %d, want 404", code)
	}
}

func TestCacheStats(t *testing.T) {
	skipIfUnavailable(t)
	var stats map[string]any
	if code := getJSON(t, "/api/v1/cache/stats", &stats); code != http.StatusOK {
		t.Fatalf("cache stats status = %d", code)
	}
	if stats["status"] == "disabled" {
		t.Skip("layout cache disabled")
	}
	if _, ok := stats["hit_rate"]; !ok {
		t.Errorf("stats missing hit_rate: %v", stats)
	}
}
