// Package fetcher performs classified HTTP GETs for link validation.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/models"
	"github.com/aluiziolira/go-linkcheck/parser"
	"github.com/gocolly/colly/v2"
)

const stateKey = "linkcheck.state"

// Fetcher wraps a colly collector and the retry policy. The collector runs
// in synchronous mode; callers own concurrency.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	Metrics   *Metrics
}

// Option customises a Fetcher.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	metrics   *Metrics
	policy    RetryPolicy
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithMetrics shares a metrics bundle instead of creating one.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRetryPolicy overrides which statuses are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.policy = p }
}

// fetchState is filled by the response callback for one request.
type fetchState struct {
	statusCode  int
	body        []byte
	finalURL    string
	contentType string
}

// New builds a fetcher configured from cfg.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt

	transport := o.transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: cfg.Concurrency,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	collector.WithTransport(transport)

	follow, maxHops := cfg.FollowRedirects, cfg.MaxRedirects
	// A zero hop budget reports the first 3xx as a redirect.
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if !follow || maxHops == 0 {
			return http.ErrUseLastResponse
		}
		if len(via) > maxHops {
			return fmt.Errorf("%w: stopped after %d hops", errTooManyRedirects, maxHops)
		}
		return nil
	})

	collector.OnResponse(func(r *colly.Response) {
		state, ok := r.Ctx.GetAny(stateKey).(*fetchState)
		if !ok {
			return
		}
		state.statusCode = r.StatusCode
		if r.Request != nil && r.Request.URL != nil {
			state.finalURL = r.Request.URL.String()
		}
		if r.Headers != nil {
			state.contentType = r.Headers.Get("Content-Type")
		}
		if statusForCode(r.StatusCode) == models.StatusSuccess {
			state.body = r.Body
		}
	})

	return &Fetcher{
		cfg:       cfg,
		collector: collector,
		retry:     newRetryManager(cfg, o.policy, o.metrics),
		Metrics:   o.metrics,
	}, nil
}

// Fetch performs one logical GET of rawURL, retrying transient failures.
// Failures are reported in the outcome, never as an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) models.FetchOutcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := parser.ValidateURL(rawURL); err != nil {
		classified := ErrMalformedURL{URL: rawURL, Err: err}
		f.Metrics.IncError(errorTypeLabel(classified))
		return models.FetchOutcome{Status: models.StatusMalformedInput, Error: classified.Error()}
	}
	target := strings.TrimSpace(rawURL)

	var out models.FetchOutcome
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if attempt == 1 {
				return models.FetchOutcome{Status: models.StatusCancelled, Error: err.Error()}
			}
			break
		}

		out = f.fetchOnce(target)
		out.Attempts = attempt
		f.Metrics.IncRequest(out.Status)

		if !f.retry.ShouldRetry(out.Status, attempt) {
			break
		}
		slog.Debug("retrying request",
			slog.String("url", target),
			slog.String("status", string(out.Status)),
			slog.Int("attempt", attempt),
		)
		if !f.retry.Wait(ctx, attempt) {
			break
		}
	}
	return out
}

func (f *Fetcher) fetchOnce(target string) models.FetchOutcome {
	state := &fetchState{}
	cctx := colly.NewContext()
	cctx.Put(stateKey, state)

	start := time.Now()
	err := f.collector.Request(http.MethodGet, target, nil, cctx, nil)
	elapsed := time.Since(start)
	f.Metrics.ObserveDuration(elapsed)

	out := models.FetchOutcome{
		StatusCode:   state.statusCode,
		ResponseTime: elapsed,
		FinalURL:     state.finalURL,
		ContentType:  state.contentType,
	}

	if err == nil && state.statusCode == 0 {
		err = fmt.Errorf("no response received")
	}
	if classified := classifyError(err, state.statusCode); classified != nil {
		out.Status = StatusFor(classified)
		out.Error = classified.Error()
		f.Metrics.IncError(errorTypeLabel(classified))
		slog.Debug("fetch failed",
			slog.String("url", target),
			slog.String("category", errorTypeLabel(classified)),
			slog.Any("error", err),
		)
		return out
	}

	out.Status = statusForCode(state.statusCode)
	if out.Status == models.StatusSuccess {
		out.Body = state.body
		if out.Body == nil {
			out.Body = []byte{}
		}
	}
	return out
}
