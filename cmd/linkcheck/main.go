package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/extract"
	"github.com/aluiziolira/go-linkcheck/fetcher"
	"github.com/aluiziolira/go-linkcheck/models"
	"github.com/aluiziolira/go-linkcheck/parser"
	"github.com/aluiziolira/go-linkcheck/pipeline"
	"github.com/aluiziolira/go-linkcheck/publish"
	"github.com/aluiziolira/go-linkcheck/relevance"
	"github.com/aluiziolira/go-linkcheck/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// flagSetters copy an explicitly passed flag from the parsed scratch
// config onto the effective one, so flags win over file and env values.
var flagSetters = map[string]func(dst, src *config.Config){
	"project":            func(d, s *config.Config) { d.ProjectName = s.ProjectName },
	"concurrency":        func(d, s *config.Config) { d.Concurrency = s.Concurrency },
	"timeout":            func(d, s *config.Config) { d.Timeout = s.Timeout },
	"max-retries":        func(d, s *config.Config) { d.MaxRetries = s.MaxRetries },
	"retry-backoff":      func(d, s *config.Config) { d.RetryBackoff = s.RetryBackoff },
	"retry-backoff-max":  func(d, s *config.Config) { d.RetryBackoffMax = s.RetryBackoffMax },
	"follow-redirects":   func(d, s *config.Config) { d.FollowRedirects = s.FollowRedirects },
	"max-redirects":      func(d, s *config.Config) { d.MaxRedirects = s.MaxRedirects },
	"respect-robots":     func(d, s *config.Config) { d.RespectRobotsTxt = s.RespectRobotsTxt },
	"rps":                func(d, s *config.Config) { d.RequestsPerSecond = s.RequestsPerSecond },
	"cache-size":         func(d, s *config.Config) { d.FetchCacheSize = s.FetchCacheSize },
	"user-agent":         func(d, s *config.Config) { d.UserAgent = s.UserAgent },
	"extract":            func(d, s *config.Config) { d.ExtractMode = s.ExtractMode },
	"scoring":            func(d, s *config.Config) { d.ScoringStrategy = s.ScoringStrategy },
	"description-weight": func(d, s *config.Config) { d.DescriptionWeight = s.DescriptionWeight },
	"high":               func(d, s *config.Config) { d.HighThreshold = s.HighThreshold },
	"medium":             func(d, s *config.Config) { d.MediumThreshold = s.MediumThreshold },
	"top-keywords":       func(d, s *config.Config) { d.TopKeywords = s.TopKeywords },
	"out":                func(d, s *config.Config) { d.OutputDir = s.OutputDir },
	"json":               func(d, s *config.Config) { d.OutputJSON = s.OutputJSON },
	"markdown":           func(d, s *config.Config) { d.OutputMarkdown = s.OutputMarkdown },
	"records":            func(d, s *config.Config) { d.RecordsFile = s.RecordsFile },
	"records-format":     func(d, s *config.Config) { d.RecordsFormat = s.RecordsFormat },
	"metrics-addr":       func(d, s *config.Config) { d.MetricsAddr = s.MetricsAddr },
	"v":                  func(d, s *config.Config) { d.Verbose = s.Verbose },
	"s3-bucket":          func(d, s *config.Config) { d.S3Bucket = s.S3Bucket },
	"s3-region":          func(d, s *config.Config) { d.S3Region = s.S3Region },
	"redis-addr":         func(d, s *config.Config) { d.RedisAddr = s.RedisAddr },
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("linkcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: linkcheck [flags]\n\nValidates links and ranks them by keyword relevance.\n\nFlags:")
		fs.PrintDefaults()
	}

	fc := config.DefaultConfig()
	configPath := fs.String("config", "", "YAML file with settings, keywords and link sections")
	inputPath := fs.String("input", "", "Markdown or HTML document to extract links from")
	fs.StringVar(&fc.ProjectName, "project", fc.ProjectName, "Project name used in reports and output file names")
	fs.IntVar(&fc.Concurrency, "concurrency", fc.Concurrency, "Maximum concurrent fetches")
	fs.DurationVar(&fc.Timeout, "timeout", fc.Timeout, "Per-request timeout")
	fs.IntVar(&fc.MaxRetries, "max-retries", fc.MaxRetries, "Retries for timeouts and connection errors")
	fs.DurationVar(&fc.RetryBackoff, "retry-backoff", fc.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&fc.RetryBackoffMax, "retry-backoff-max", fc.RetryBackoffMax, "Maximum retry backoff")
	fs.BoolVar(&fc.FollowRedirects, "follow-redirects", fc.FollowRedirects, "Follow redirects and classify by the final response")
	fs.IntVar(&fc.MaxRedirects, "max-redirects", fc.MaxRedirects, "Maximum redirect hops, 0 reports the first redirect")
	fs.BoolVar(&fc.RespectRobotsTxt, "respect-robots", fc.RespectRobotsTxt, "Respect robots.txt directives")
	fs.Float64Var(&fc.RequestsPerSecond, "rps", fc.RequestsPerSecond, "Global request rate limit (0 disables)")
	fs.IntVar(&fc.FetchCacheSize, "cache-size", fc.FetchCacheSize, "Fetch cache entries shared by repeated URLs (0 disables)")
	fs.StringVar(&fc.UserAgent, "user-agent", fc.UserAgent, "User-Agent header")
	fs.StringVar(&fc.ExtractMode, "extract", fc.ExtractMode, "Text extraction: text or article")
	fs.StringVar(&fc.ScoringStrategy, "scoring", fc.ScoringStrategy, "Scoring strategy: keyword, description, or blend")
	fs.Float64Var(&fc.DescriptionWeight, "description-weight", fc.DescriptionWeight, "Description overlap weight for blend scoring")
	fs.Float64Var(&fc.HighThreshold, "high", fc.HighThreshold, "High relevance threshold")
	fs.Float64Var(&fc.MediumThreshold, "medium", fc.MediumThreshold, "Medium relevance threshold")
	fs.IntVar(&fc.TopKeywords, "top-keywords", fc.TopKeywords, "Matched keywords listed per report entry")
	fs.StringVar(&fc.OutputDir, "out", fc.OutputDir, "Directory for report files")
	fs.StringVar(&fc.OutputJSON, "json", "", "JSON results path (default derived from project)")
	fs.StringVar(&fc.OutputMarkdown, "markdown", "", "Markdown summary path (default derived from project)")
	fs.StringVar(&fc.RecordsFile, "records", "", "Stream records to this file as they finish")
	fs.StringVar(&fc.RecordsFormat, "records-format", fc.RecordsFormat, "Records format: jsonl, csv, or dual")
	fs.StringVar(&fc.MetricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&fc.Verbose, "v", false, "Enable verbose logging")
	fs.StringVar(&fc.S3Bucket, "s3-bucket", "", "Upload reports to this S3 bucket")
	fs.StringVar(&fc.S3Region, "s3-region", "", "S3 region")
	fs.StringVar(&fc.RedisAddr, "redis-addr", "", "Queue dead links on this Redis server")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg := config.DefaultConfig()
	var file *config.File
	if *configPath != "" {
		f, err := config.LoadFile(*configPath)
		if err == nil {
			err = f.Apply(cfg)
		}
		if err != nil {
			fmt.Fprintf(stderr, "config: %v\n", err)
			return 1
		}
		file = f
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(stderr, "environment: %v\n", err)
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		if set, ok := flagSetters[f.Name]; ok {
			set(cfg, fc)
		}
	})
	cfg.ResolveOutputs()

	logger, level := newLogger(stderr, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	targets, source, err := loadTargets(*inputPath, file)
	if err != nil {
		slog.Error("loading targets", slog.String("source", source), slog.Any("error", err))
		return 1
	}
	targets = parser.Dedupe(targets)

	slog.Info("starting validation",
		slog.String("project", cfg.ProjectName),
		slog.String("source", source),
		slog.Int("targets", len(targets)),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Duration("timeout", cfg.Timeout),
	)

	f, err := fetcher.New(cfg)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, f.Metrics)

	var sink *pipeline.Sink
	var recordsWriter pipeline.OutputWriter
	if cfg.RecordsFile != "" {
		recordsWriter, err = pipeline.NewWriter(cfg.RecordsFormat, cfg.RecordsFile)
		if err != nil {
			slog.Error("creating records writer", slog.Any("error", err))
			return 1
		}
		sink = pipeline.NewSink(recordsWriter, cfg.Concurrency*2, 32)
		sink.Start(1)
	}

	onRecord := func(r models.Record) {
		fmt.Fprintln(stdout, report.ProgressLine(r))
		if sink != nil {
			if err := sink.Process(r); err != nil {
				slog.Warn("record stream", slog.String("url", r.URL), slog.Any("error", err))
			}
		}
	}

	coord, err := pipeline.NewCoordinator(f, extract.New(cfg.ExtractMode), relevance.NewScorer(cfg), cfg,
		pipeline.WithOnRecord(onRecord),
		pipeline.WithMetrics(f.Metrics),
	)
	if err != nil {
		slog.Error("initialising coordinator", slog.Any("error", err))
		return 1
	}

	startedAt := time.Now()
	records, err := coord.Run(ctx, targets)
	if err != nil {
		slog.Error("validation failed", slog.Any("error", err))
		return 1
	}
	if ctx.Err() != nil {
		slog.Warn("run interrupted, unfinished targets are reported as cancelled")
	}

	exit := 0
	if sink != nil {
		if err := sink.Close(); err != nil {
			slog.Error("record stream failed", slog.Any("error", err))
			exit = 1
		}
		if err := recordsWriter.Close(); err != nil {
			slog.Error("close records writer", slog.Any("error", err))
			exit = 1
		} else if err := recordsWriter.Validate(); err != nil {
			slog.Error("records file validation failed", slog.Any("error", err))
			exit = 1
		}
		slog.Info("records streamed",
			slog.String("file", cfg.RecordsFile),
			slog.Int64("written", sink.Written()),
			slog.Int64("duplicates", sink.Duplicates()),
		)
	}

	rep := report.Build(records, cfg)
	rep.StartedAt = startedAt
	rep.FinishedAt = time.Now()

	if err := report.WriteJSON(cfg.OutputJSON, rep); err != nil {
		slog.Error("writing json report", slog.Any("error", err))
		return 1
	}
	if err := report.WriteMarkdown(cfg.OutputMarkdown, rep, cfg); err != nil {
		slog.Error("writing markdown report", slog.Any("error", err))
		return 1
	}

	publishResults(context.WithoutCancel(ctx), cfg, rep, records)
	stopMetricsServer(metricsServer)

	report.PrintSummary(stdout, rep)
	fmt.Fprintf(stdout, "  JSON:     %s\n", cfg.OutputJSON)
	fmt.Fprintf(stdout, "  Markdown: %s\n", cfg.OutputMarkdown)
	return exit
}

// loadTargets picks the link source: an input document, the YAML file's
// sections, or the built-in sample set.
func loadTargets(inputPath string, file *config.File) ([]models.Target, string, error) {
	if inputPath != "" {
		targets, err := parser.LoadFile(inputPath)
		return targets, inputPath, err
	}
	if file != nil {
		if targets := file.Targets(); len(targets) > 0 {
			normalized := make([]models.Target, 0, len(targets))
			for _, t := range targets {
				normalized = append(normalized, parser.NormalizeTarget(t))
			}
			return normalized, "config", nil
		}
	}
	return parser.Sample(), "sample", nil
}

func startMetricsServer(addr string, metrics *fetcher.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return srv
}

func stopMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

// publishResults uploads reports and queues dead links. Failures are
// logged only; the local files are the run's output.
func publishResults(ctx context.Context, cfg *config.Config, rep models.Report, records []models.Record) {
	if cfg.S3Bucket != "" {
		p, err := publish.NewS3Publisher(ctx, publish.S3ConfigFrom(cfg))
		if err != nil {
			slog.Warn("s3 publisher unavailable", slog.Any("error", err))
		} else {
			files := []string{cfg.OutputJSON, cfg.OutputMarkdown}
			keys, err := p.Upload(ctx, rep.RunID, files...)
			if err != nil {
				slog.Warn("uploading reports", slog.Any("error", err))
			}
			for _, key := range keys {
				slog.Info("report uploaded", slog.String("bucket", cfg.S3Bucket), slog.String("key", key))
			}
		}
	}

	if cfg.RedisAddr != "" {
		q := publish.NewDeadLinkQueue(publish.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.RedisQueue)
		defer q.Close()
		if _, err := q.Push(ctx, rep.RunID, records); err != nil {
			slog.Warn("queueing dead links", slog.Any("error", err))
			return
		}
		if n, err := q.Length(ctx); err != nil {
			slog.Warn("reading dead link queue length", slog.Any("error", err))
		} else {
			slog.Info("dead link queue", slog.Int64("pending", n))
		}
	}
}

func newLogger(w io.Writer, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
