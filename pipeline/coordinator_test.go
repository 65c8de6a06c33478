package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/extract"
	"github.com/aluiziolira/go-linkcheck/models"
	"github.com/aluiziolira/go-linkcheck/relevance"
)

type fakeFetcher struct {
	mu          sync.Mutex
	outcomes    map[string]models.FetchOutcome
	calls       map[string]int
	delay       time.Duration
	panicOn     string
	inFlight    int
	maxInFlight int
}

func newFakeFetcher(outcomes map[string]models.FetchOutcome) *fakeFetcher {
	return &fakeFetcher{outcomes: outcomes, calls: make(map[string]int)}
}

func (ff *fakeFetcher) Fetch(ctx context.Context, rawURL string) models.FetchOutcome {
	ff.mu.Lock()
	ff.calls[rawURL]++
	ff.inFlight++
	if ff.inFlight > ff.maxInFlight {
		ff.maxInFlight = ff.inFlight
	}
	out, ok := ff.outcomes[rawURL]
	ff.mu.Unlock()

	defer func() {
		ff.mu.Lock()
		ff.inFlight--
		ff.mu.Unlock()
	}()

	if rawURL == ff.panicOn {
		panic("fetch exploded")
	}
	if ff.delay > 0 {
		time.Sleep(ff.delay)
	}
	if !ok {
		return models.FetchOutcome{Status: models.StatusSuccess, StatusCode: 200, Body: []byte("<p>ok</p>"), Attempts: 1}
	}
	return out
}

func (ff *fakeFetcher) callCount(rawURL string) int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.calls[rawURL]
}

func (ff *fakeFetcher) peak() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.maxInFlight
}

func testCoordinator(t *testing.T, f Fetcher, cfg *config.Config, opts ...Option) *Coordinator {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c, err := NewCoordinator(f, extract.New(cfg.ExtractMode), relevance.NewScorer(cfg), cfg, opts...)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func checkInvariants(t *testing.T, records []models.Record) {
	t.Helper()
	for _, r := range records {
		if r.Accessible != r.Status.Accessible() {
			t.Errorf("%s: accessible=%v for status %s", r.URL, r.Accessible, r.Status)
		}
		if (r.ContentHash != "") != (r.Status == models.StatusSuccess) {
			t.Errorf("%s: content hash %q with status %s", r.URL, r.ContentHash, r.Status)
		}
		if r.Score < 0 || r.Score > 100 {
			t.Errorf("%s: score %v out of range", r.URL, r.Score)
		}
	}
}

func TestCoordinatorRunsEveryTargetWithBoundedConcurrency(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 2

	ff := newFakeFetcher(nil)
	ff.delay = 20 * time.Millisecond

	targets := make([]models.Target, 5)
	for i := range targets {
		targets[i] = models.Target{URL: fmt.Sprintf("https://example.test/%d", i), Section: "S"}
	}

	records, err := testCoordinator(t, ff, cfg).Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != len(targets) {
		t.Fatalf("records = %d, want %d", len(records), len(targets))
	}
	for i, r := range records {
		if r.URL != targets[i].URL {
			t.Fatalf("record %d url = %q, want %q", i, r.URL, targets[i].URL)
		}
	}
	if peak := ff.peak(); peak > 2 {
		t.Fatalf("peak in-flight fetches = %d, want <= 2", peak)
	}
	checkInvariants(t, records)
}

func TestCoordinatorEmptyBatch(t *testing.T) {
	records, err := testCoordinator(t, newFakeFetcher(nil), nil).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}

func TestCoordinatorRedisScenario(t *testing.T) {
	const url = "https://example.com/ok"
	ff := newFakeFetcher(map[string]models.FetchOutcome{
		url: {
			Status:      models.StatusSuccess,
			StatusCode:  200,
			Body:        []byte("<html><title>Redis</title><body>Redis is an in-memory cache</body></html>"),
			ContentType: "text/html",
			Attempts:    1,
		},
	})

	records, err := testCoordinator(t, ff, nil).Run(context.Background(), []models.Target{{URL: url, Description: "redis cache"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := records[0]
	if r.Status != models.StatusSuccess || !r.Accessible {
		t.Fatalf("status = %s accessible = %v", r.Status, r.Accessible)
	}
	if r.Score <= 0 {
		t.Fatalf("score = %v, want > 0", r.Score)
	}
	if len(r.ContentHash) != contentHashLen {
		t.Fatalf("content hash = %q", r.ContentHash)
	}
	if r.Title != "Redis" {
		t.Fatalf("title = %q", r.Title)
	}
	if !r.Scored() {
		t.Fatalf("record should be scored")
	}
}

func TestCoordinatorTimeoutScenario(t *testing.T) {
	const url = "https://example.com/slow"
	ff := newFakeFetcher(map[string]models.FetchOutcome{
		url: {Status: models.StatusTimeout, Error: "timeout: context deadline exceeded", ResponseTime: 15 * time.Second, Attempts: 3},
	})

	records, err := testCoordinator(t, ff, nil).Run(context.Background(), []models.Target{{URL: url, Description: "redis"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := records[0]
	if r.Status != models.StatusTimeout || r.Accessible || r.Score != 0 || r.ContentHash != "" {
		t.Fatalf("record = %+v", r)
	}
	if r.ResponseTimeSeconds != 15 || r.Attempts != 3 {
		t.Fatalf("timing = %v attempts = %d", r.ResponseTimeSeconds, r.Attempts)
	}
}

func TestCoordinatorIsolatesPanics(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 3

	ff := newFakeFetcher(nil)
	ff.panicOn = "https://example.test/boom"

	targets := []models.Target{
		{URL: "https://example.test/a"},
		{URL: "https://example.test/boom"},
		{URL: "https://example.test/b"},
	}
	records, err := testCoordinator(t, ff, cfg).Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[1].Status != models.StatusUnknownError || records[1].ErrorMessage == "" {
		t.Fatalf("panicking target = %+v", records[1])
	}
	if records[0].Status != models.StatusSuccess || records[2].Status != models.StatusSuccess {
		t.Fatalf("siblings affected: %s %s", records[0].Status, records[2].Status)
	}
	checkInvariants(t, records)
}

func TestCoordinatorFetchCacheSharesRepeatedURL(t *testing.T) {
	const url = "https://example.test/shared"
	targets := []models.Target{
		{URL: url, Section: "A"},
		{URL: url, Section: "B"},
		{URL: url, Section: "C"},
	}

	tests := []struct {
		name      string
		cacheSize int
		wantCalls int
	}{
		{name: "cache enabled", cacheSize: 16, wantCalls: 1},
		{name: "cache disabled", cacheSize: 0, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Concurrency = 3
			cfg.FetchCacheSize = tt.cacheSize

			ff := newFakeFetcher(nil)
			ff.delay = 10 * time.Millisecond

			records, err := testCoordinator(t, ff, cfg).Run(context.Background(), targets)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(records) != 3 {
				t.Fatalf("records = %d, want 3", len(records))
			}
			for i, r := range records {
				if r.Section != targets[i].Section {
					t.Fatalf("record %d section = %q", i, r.Section)
				}
			}
			if got := ff.callCount(url); got != tt.wantCalls {
				t.Fatalf("fetch calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestCoordinatorUnscoredOutcomes(t *testing.T) {
	ff := newFakeFetcher(map[string]models.FetchOutcome{
		"https://example.test/doc.pdf": {
			Status: models.StatusSuccess, StatusCode: 200, Body: []byte("%PDF-1.4"), ContentType: "application/pdf",
		},
		"https://example.test/moved": {
			Status: models.StatusRedirect, StatusCode: 301,
		},
	})

	records, err := testCoordinator(t, ff, nil).Run(context.Background(), []models.Target{
		{URL: "https://example.test/doc.pdf"},
		{URL: "https://example.test/moved"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	pdf := records[0]
	if pdf.Status != models.StatusSuccess || pdf.ExtractionError == "" || pdf.Score != 0 || pdf.Scored() {
		t.Fatalf("pdf record = %+v", pdf)
	}
	if pdf.ContentLength != len("%PDF-1.4") {
		t.Fatalf("content length = %d", pdf.ContentLength)
	}

	moved := records[1]
	if !moved.Accessible || moved.ContentHash != "" || moved.Score != 0 {
		t.Fatalf("redirect record = %+v", moved)
	}
	checkInvariants(t, records)
}

func TestCoordinatorExtractionError(t *testing.T) {
	cfg := config.DefaultConfig()
	failing := extract.ExtractorFunc(func([]byte, string) (extract.Page, error) {
		return extract.Page{}, fmt.Errorf("%w: broken", extract.ErrParse)
	})

	c, err := NewCoordinator(newFakeFetcher(nil), failing, relevance.NewScorer(cfg), cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	records, err := c.Run(context.Background(), []models.Target{{URL: "https://example.test/x"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := records[0]
	if r.Status != models.StatusSuccess || r.ExtractionError == "" || r.Score != 0 {
		t.Fatalf("record = %+v", r)
	}
	checkInvariants(t, records)
}

func TestCoordinatorOnRecord(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 4

	var seen []string
	c := testCoordinator(t, newFakeFetcher(nil), cfg, WithOnRecord(func(r models.Record) {
		seen = append(seen, r.URL)
	}))

	targets := make([]models.Target, 10)
	for i := range targets {
		targets[i] = models.Target{URL: fmt.Sprintf("https://example.test/%d", i)}
	}
	if _, err := c.Run(context.Background(), targets); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(seen) != len(targets) {
		t.Fatalf("callbacks = %d, want %d", len(seen), len(targets))
	}
}

func TestCoordinatorSurvivesPanickingHook(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 3

	var mu sync.Mutex
	calls := 0
	c := testCoordinator(t, newFakeFetcher(nil), cfg, WithOnRecord(func(r models.Record) {
		mu.Lock()
		calls++
		mu.Unlock()
		if r.URL == "https://example.test/1" {
			panic("hook exploded")
		}
	}))

	targets := make([]models.Target, 4)
	for i := range targets {
		targets[i] = models.Target{URL: fmt.Sprintf("https://example.test/%d", i)}
	}
	records, err := c.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(records) != len(targets) {
		t.Fatalf("records = %d, want %d", len(records), len(targets))
	}
	for i, r := range records {
		if r.Status != models.StatusSuccess {
			t.Fatalf("record %d status = %q, want success", i, r.Status)
		}
	}
	if calls != len(targets) {
		t.Fatalf("hook calls = %d, want %d", calls, len(targets))
	}
	checkInvariants(t, records)
}

func TestCoordinatorRateLimiterHonoursCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RequestsPerSecond = 1
	cfg.FetchCacheSize = 0

	ff := newFakeFetcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := testCoordinator(t, ff, cfg).Run(ctx, []models.Target{
		{URL: "https://example.test/1"},
		{URL: "https://example.test/2"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, r := range records {
		if r.Status != models.StatusCancelled {
			t.Fatalf("status = %s, want cancelled", r.Status)
		}
	}
	if got := ff.callCount("https://example.test/1"); got != 0 {
		t.Fatalf("fetcher called %d times after cancel", got)
	}
}

func TestNewCoordinatorRejectsNilCollaborators(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := NewCoordinator(nil, extract.New(""), relevance.NewScorer(cfg), cfg); !errors.Is(err, ErrNilCollaborator) {
		t.Fatalf("expected ErrNilCollaborator, got %v", err)
	}
}

func TestContentHash(t *testing.T) {
	a := contentHash([]byte("same"))
	b := contentHash([]byte("same"))
	c := contentHash([]byte("different"))
	if a != b || a == c || len(a) != contentHashLen {
		t.Fatalf("hashes: %q %q %q", a, b, c)
	}
	if contentHash(nil) == "" {
		t.Fatalf("empty body should still hash")
	}
}

func BenchmarkCoordinatorRun(b *testing.B) {
	body := []byte("<p>Redis and nginx rely on epoll for event-driven io multiplexing.</p>")
	for _, workers := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			cfg := config.DefaultConfig()
			cfg.Concurrency = workers
			cfg.FetchCacheSize = 0

			targets := make([]models.Target, 256)
			outcomes := make(map[string]models.FetchOutcome, len(targets))
			for i := range targets {
				url := fmt.Sprintf("https://example.test/%d", i)
				targets[i] = models.Target{URL: url, Description: "epoll event loop"}
				outcomes[url] = models.FetchOutcome{Status: models.StatusSuccess, StatusCode: 200, Body: body}
			}
			c, err := NewCoordinator(newFakeFetcher(outcomes), extract.New(config.ExtractText), relevance.NewScorer(cfg), cfg)
			if err != nil {
				b.Fatalf("new coordinator: %v", err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Run(context.Background(), targets); err != nil {
					b.Fatalf("run: %v", err)
				}
			}
			elapsed := b.Elapsed().Seconds()
			if elapsed > 0 {
				b.ReportMetric(float64(b.N*len(targets))/elapsed, "targets/sec")
			}
		})
	}
}
