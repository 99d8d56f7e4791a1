package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/internal/api"
	"github.com/JakeFAU/webspider/internal/config"
	"github.com/JakeFAU/webspider/internal/handlers/links"
	"github.com/JakeFAU/webspider/internal/handlers/quotes"
	"github.com/JakeFAU/webspider/internal/output"
	pubsubpublisher "github.com/JakeFAU/webspider/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/webspider/internal/storage/gcs"
	localstorage "github.com/JakeFAU/webspider/internal/storage/local"
	collytransport "github.com/JakeFAU/webspider/internal/transport/colly"
	"github.com/JakeFAU/webspider/internal/transport/headless"
	"github.com/JakeFAU/webspider/internal/transport/promote"
	"github.com/JakeFAU/webspider/pkg/spider"
)

const shutdownTimeout = 10 * time.Second

type crawlOptions struct {
	url      string
	handler  string
	maxPages int
	depth    int
	output   string
}

func newCrawlCmd(c *cli) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl to completion",
		Long: `Fetches --url, hands the response to the chosen handler and keeps going
until every discovered request has been handled. SIGINT or SIGTERM cancels
the crawl: items the output already received are flushed, items still
waiting in the stream are dropped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCrawl(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "", "start URL")
	flags.StringVar(&opts.handler, "handler", "quotes", "handler to run: quotes or links")
	flags.IntVar(&opts.maxPages, "max-pages", 0, "quotes: stop after this many pages (0 means no limit)")
	flags.IntVar(&opts.depth, "depth", 1, "links: follow same-host links this many hops (-1 means no limit)")
	flags.StringVar(&opts.output, "output", "", "override output.kind: stdout, local, gcs or pubsub")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func (c *cli) runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	cfg := c.cfg
	if opts.output != "" {
		cfg.Output.Kind = opts.output
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid output: %w", err)
		}
	}
	start, err := spider.Get(opts.url)
	if err != nil {
		return fmt.Errorf("start url: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, closeTransport, err := buildTransport(cfg, c.logger, chromedpRenderer)
	if err != nil {
		return err
	}
	defer closeTransport()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s, err := spider.New(transport, spider.WithLogger(c.logger.Named("spider")), spider.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("init spider: %w", err)
	}

	env := &crawlEnv{
		cfg:    cfg,
		logger: c.logger,
		stdout: cmd.OutOrStdout(),
		reg:    reg,
		spider: s,
	}
	switch opts.handler {
	case "quotes":
		return runWeb(ctx, env, start, quotes.New(opts.maxPages), quotes.Page(1))
	case "links":
		return runWeb(ctx, env, start, links.Handler(), links.Start(opts.depth))
	default:
		return fmt.Errorf("unknown handler %q: want quotes or links", opts.handler)
	}
}

type crawlEnv struct {
	cfg    config.Config
	logger *zap.Logger
	stdout io.Writer
	reg    *prometheus.Registry
	spider *spider.Spider
}

func runWeb[I, C any](
	ctx context.Context,
	env *crawlEnv,
	start *spider.Request,
	handler spider.Handler[I, C],
	meta C,
) error {
	web, err := spider.NewWeb[I, C](env.spider).
		Start(start).
		Handler(handler).
		Meta(meta).
		ConcurrentRequests(env.cfg.Spider.ConcurrentRequests).
		TaskQueueSizeBytes(env.cfg.Spider.TaskQueueSizeBytes).
		Build()
	if err != nil {
		return fmt.Errorf("build web: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	run, err := web.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("start crawl: %w", err)
	}
	logger := env.logger.With(zap.String("run_id", run.ID()))

	sink, closeSink, err := buildOutput(ctx, env.cfg, run.ID(), env.stdout)
	if err != nil {
		cancel()
		drain(run)
		return err
	}
	defer closeSink()

	stopServer := startServer(env, run, cancel, logger)
	defer stopServer()

	var writeErr error
	var written int
	for item := range run.Items() {
		if writeErr != nil {
			continue
		}
		if err := sink.Write(ctx, item); err != nil {
			writeErr = err
			logger.Error("output write failed, canceling crawl", zap.Error(err))
			cancel()
			continue
		}
		written++
	}
	<-run.Done()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer flushCancel()
	closeErr := sink.Close(flushCtx)

	stats := run.Stats()
	logger.Info("crawl finished",
		zap.Stringer("state", run.State()),
		zap.Int("written", written),
		zap.Int64("executed", stats.Executed),
		zap.Int64("failed", stats.Failed()),
	)
	if blob, ok := sink.(*output.Blob); ok && closeErr == nil {
		logger.Info("items uploaded", zap.String("uri", blob.URI()))
	}

	if writeErr != nil {
		return fmt.Errorf("write items: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}
	if err := run.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}

func drain[I any](run *spider.Run[I]) {
	for range run.Items() {
	}
	<-run.Done()
}

// rendererFactory builds the headless transport and the func that releases it.
type rendererFactory func(cfg headless.Config) (spider.Transport, func(), error)

func chromedpRenderer(cfg headless.Config) (spider.Transport, func(), error) {
	t, err := headless.NewChromedp(cfg)
	if err != nil {
		return nil, nil, err
	}
	return t, t.Close, nil
}

func buildTransport(cfg config.Config, logger *zap.Logger, newRenderer rendererFactory) (spider.Transport, func(), error) {
	plain := collytransport.New(collytransport.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.RequestTimeout(),
		MaxBodySize:   cfg.HTTP.MaxBodyBytes,
	})
	if cfg.Headless.Mode == config.HeadlessOff {
		return plain, func() {}, nil
	}

	renderer, closeRenderer, err := newRenderer(headless.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: cfg.NavigationTimeout(),
	})
	switch {
	case err == nil:
	case cfg.Headless.Mode == config.HeadlessAlways:
		return nil, nil, fmt.Errorf("init headless transport: %w", err)
	default:
		logger.Warn("headless transport init failed, pages stay unrendered", zap.Error(err))
		renderer, closeRenderer = headless.NewNoop(), func() {}
	}
	if cfg.Headless.Mode == config.HeadlessAlways {
		return renderer, closeRenderer, nil
	}

	promoted, err := promote.New(plain, renderer, promote.NewHeuristic(cfg.Headless.PromotionThreshold), logger.Named("promote"))
	if err != nil {
		closeRenderer()
		return nil, nil, fmt.Errorf("init promote transport: %w", err)
	}
	return promoted, closeRenderer, nil
}

func buildOutput(ctx context.Context, cfg config.Config, runID string, stdout io.Writer) (output.Writer, func(), error) {
	object := path.Join(runID, cfg.Output.Object)
	switch cfg.Output.Kind {
	case config.OutputLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Output.Path})
		if err != nil {
			return nil, nil, fmt.Errorf("init local output: %w", err)
		}
		w, err := output.NewBlob(store, object)
		if err != nil {
			return nil, nil, err
		}
		return w, func() {}, nil
	case config.OutputGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Output.Bucket, Prefix: cfg.Output.Path})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("init gcs output: %w", err)
		}
		w, err := output.NewBlob(store, object)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return w, func() { _ = client.Close() }, nil
	case config.OutputPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Output.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub, err := pubsubpublisher.New(client, cfg.Output.Topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("init pubsub output: %w", err)
		}
		w, err := output.NewPublish(pub, map[string]string{"run_id": runID})
		if err != nil {
			pub.Stop()
			_ = client.Close()
			return nil, nil, err
		}
		return w, func() {
			pub.Stop()
			_ = client.Close()
		}, nil
	default:
		return output.NewJSONLines(stdout), func() {}, nil
	}
}

func startServer(env *crawlEnv, run api.StatusSource, cancel context.CancelFunc, logger *zap.Logger) func() {
	if env.cfg.Server.Addr == "" {
		return func() {}
	}
	apiServer := api.NewServer(run, logger.Named("api"),
		api.WithCancel(cancel),
		api.WithMetrics(env.spider.Metrics(), env.reg),
	)
	srv := &http.Server{
		Addr:              env.cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("status server shutdown error", zap.Error(err))
		}
	}
}
