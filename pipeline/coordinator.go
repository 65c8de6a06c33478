// Package pipeline runs fetch, extract and score for a batch of targets.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/extract"
	"github.com/aluiziolira/go-linkcheck/fetcher"
	"github.com/aluiziolira/go-linkcheck/models"
	"golang.org/x/time/rate"
)

// ErrNilCollaborator is returned when the coordinator lacks a fetcher,
// extractor or scorer.
var ErrNilCollaborator = errors.New("pipeline: nil collaborator")

// contentHashLen is the number of hex characters kept from the SHA-256 sum.
const contentHashLen = 16

// Fetcher performs one logical fetch and reports failures as data.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) models.FetchOutcome
}

// Scorer rates extracted text against a description.
type Scorer interface {
	Score(text, description string) models.RelevanceResult
}

// Coordinator runs targets through fetch, extract and score with at most
// Concurrency fetches in flight.
type Coordinator struct {
	fetcher     Fetcher
	extractor   extract.Extractor
	scorer      Scorer
	concurrency int

	limiter *rate.Limiter
	cache   *fetchCache
	metrics *fetcher.Metrics

	emitMu   sync.Mutex
	onRecord func(models.Record)
	now      func() time.Time
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithOnRecord registers a callback invoked once per finished record.
// Calls are serialised.
func WithOnRecord(fn func(models.Record)) Option {
	return func(c *Coordinator) { c.onRecord = fn }
}

// WithMetrics records per-record metrics.
func WithMetrics(m *fetcher.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides the time source used for CheckedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator wires the collaborators with limits taken from cfg.
func NewCoordinator(f Fetcher, ex extract.Extractor, sc Scorer, cfg *config.Config, opts ...Option) (*Coordinator, error) {
	if f == nil || ex == nil || sc == nil {
		return nil, ErrNilCollaborator
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	c := &Coordinator{
		fetcher:     f,
		extractor:   ex,
		scorer:      sc,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if cfg.FetchCacheSize > 0 {
		cache, err := newFetchCache(cfg.FetchCacheSize)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type job struct {
	index  int
	target models.Target
}

type result struct {
	index  int
	record models.Record
}

// Run validates every target and returns exactly one record per target, in
// input order. Per-target failures are recorded, never returned.
func (c *Coordinator) Run(ctx context.Context, targets []models.Target) ([]models.Record, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	records := make([]models.Record, len(targets))
	if len(targets) == 0 {
		return records, nil
	}

	workers := c.concurrency
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan job)
	perWorker := make([][]result, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := range jobs {
				rec := c.process(ctx, j.target)
				perWorker[w] = append(perWorker[w], result{index: j.index, record: rec})
				c.emit(rec)
			}
		}(w)
	}

	for i, t := range targets {
		jobs <- job{index: i, target: t}
	}
	close(jobs)
	wg.Wait()

	filled := make([]bool, len(targets))
	for _, results := range perWorker {
		for _, r := range results {
			records[r.index] = r.record
			filled[r.index] = true
		}
	}
	for i, ok := range filled {
		if !ok {
			records[i] = newRecord(targets[i], models.FetchOutcome{
				Status: models.StatusUnknownError,
				Error:  "no result produced",
			}, c.now())
		}
	}
	return records, nil
}

func (c *Coordinator) process(ctx context.Context, t models.Target) (rec models.Record) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("target processing panicked",
				slog.String("url", t.URL),
				slog.Any("panic", r),
			)
			rec = newRecord(t, models.FetchOutcome{
				Status: models.StatusUnknownError,
				Error:  fmt.Sprintf("internal error: %v", r),
			}, c.now())
		}
		c.metrics.ObserveRecord(rec)
	}()

	outcome := c.fetch(ctx, t.URL)
	rec = newRecord(t, outcome, c.now())
	if outcome.Status != models.StatusSuccess {
		return rec
	}

	rec.ContentLength = len(outcome.Body)
	rec.ContentHash = contentHash(outcome.Body)

	if !extract.Supported(outcome.ContentType) {
		rec.ExtractionError = fmt.Sprintf("unsupported content type %q", outcome.ContentType)
		return rec
	}
	pageURL := outcome.FinalURL
	if pageURL == "" {
		pageURL = t.URL
	}
	page, err := c.extractor.Extract(outcome.Body, pageURL)
	if err != nil {
		rec.ExtractionError = err.Error()
		slog.Debug("extraction failed", slog.String("url", t.URL), slog.Any("error", err))
		return rec
	}

	res := c.scorer.Score(page.Text, t.Description)
	rec.Title = page.Title
	rec.KeywordMatches = res.KeywordMatches
	rec.Score = res.Score
	return rec
}

func (c *Coordinator) fetch(ctx context.Context, rawURL string) models.FetchOutcome {
	do := func() models.FetchOutcome {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return models.FetchOutcome{Status: models.StatusCancelled, Error: err.Error()}
			}
		}
		return c.fetcher.Fetch(ctx, rawURL)
	}
	if c.cache == nil {
		return do()
	}
	outcome, hit := c.cache.get(rawURL, do)
	if hit {
		c.metrics.IncCacheHit()
	}
	return outcome
}

func (c *Coordinator) emit(rec models.Record) {
	if c.onRecord == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("record hook panicked",
				slog.String("url", rec.URL),
				slog.Any("panic", r),
			)
		}
	}()
	c.onRecord(rec)
}

func newRecord(t models.Target, o models.FetchOutcome, at time.Time) models.Record {
	return models.Record{
		URL:                 t.URL,
		Description:         t.Description,
		Section:             t.Section,
		Status:              o.Status,
		StatusCode:          o.StatusCode,
		ResponseTimeSeconds: math.Round(o.ResponseTime.Seconds()*1000) / 1000,
		ErrorMessage:        o.Error,
		Accessible:          o.Status.Accessible(),
		FinalURL:            o.FinalURL,
		Attempts:            o.Attempts,
		CheckedAt:           at,
	}
}

func contentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:contentHashLen]
}
