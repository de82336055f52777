package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/user/gig-sync-service/internal/adapter/brave"
	"github.com/user/gig-sync-service/internal/adapter/chromedp_fetcher"
	"github.com/user/gig-sync-service/internal/adapter/fallback"
	"github.com/user/gig-sync-service/internal/adapter/gemini"
	"github.com/user/gig-sync-service/internal/adapter/httpfetch"
	"github.com/user/gig-sync-service/internal/adapter/memory"
	"github.com/user/gig-sync-service/internal/adapter/postgres"
	redis_adapter "github.com/user/gig-sync-service/internal/adapter/redis"
	"github.com/user/gig-sync-service/internal/adapter/strapi"
	"github.com/user/gig-sync-service/internal/delivery/cron"
	"github.com/user/gig-sync-service/internal/delivery/http/handler"
	"github.com/user/gig-sync-service/internal/delivery/http/router"
	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/internal/usecase"
	"github.com/user/gig-sync-service/pkg/backoff"
	"github.com/user/gig-sync-service/pkg/config"
	"github.com/user/gig-sync-service/pkg/logger"
	"github.com/user/gig-sync-service/pkg/metrics"
	"github.com/user/gig-sync-service/pkg/useragent"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// querySpacing keeps search calls under the one-per-second plan limit.
const querySpacing = 1100 * time.Millisecond

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx := context.Background()
	checks := map[string]handler.HealthCheck{}

	// --- Gig store ---
	var (
		gigRepo repository.GigRepository
		dbpool  *pgxpool.Pool
	)
	switch cfg.StorageBackend {
	case "postgres":
		dbpool, err = postgres.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		if err := postgres.EnsureSchema(ctx, dbpool); err != nil {
			log.Fatal("failed to apply schema", zap.Error(err))
		}
		gigRepo = postgres.NewGigRepo(dbpool)
		checks["postgres"] = dbpool.Ping
		log.Info("postgres connection pool established")
	case "strapi":
		gigRepo = strapi.NewGigRepo(cfg.StrapiAPIURL, cfg.StrapiAPIToken, cfg.StoreTimeout())
		log.Info("using strapi gig store", zap.String("url", cfg.StrapiAPIURL))
	}

	// --- Run coordination ---
	var (
		queue  repository.SyncQueueRepository = memory.NewQueueRepo()
		status repository.RunStatusRepository = memory.NewRunStatusRepo()
		lock   repository.RunLockRepository
		rdb    *goredis.Client
	)
	if cfg.RedisURL != "" {
		rdb, err = redis_adapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		queue = redis_adapter.NewQueueRepo(rdb)
		status = redis_adapter.NewRunStatusRepo(rdb)
		lock = redis_adapter.NewRunLockRepo(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info("redis connection established")
	}

	// --- Fetchers ---
	httpFetcher := httpfetch.NewFetcher(cfg.ScrapeTimeout(), useragent.NewRotator())
	var (
		fetcher repository.Fetcher = httpFetcher
		browser *chromedp_fetcher.Fetcher
	)
	if cfg.Fetcher == "browser" {
		browser = chromedp_fetcher.NewFetcher(cfg.ScrapeTimeout(), log)
		fetcher = fallback.NewFetcher(log, browser, httpFetcher)
	}

	// --- Use cases ---
	policy := backoff.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.InitialDelay = cfg.RetryInitialDelay()
	policy.Multiplier = cfg.RetryMultiplier

	search := brave.NewSearchRepo(cfg.BraveEndpoint, cfg.BraveAPIKey, cfg.SearchTimeout())
	llm := gemini.NewLLMRepo(cfg.GeminiEndpoint, cfg.GeminiModel, cfg.GeminiAPIKey, cfg.LLMTimeout(), log)

	var limiter *rate.Limiter
	if cfg.ScrapeRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ScrapeRatePerSecond), 1)
	}
	scraper := usecase.NewScraper(fetcher, cfg.ScraperConcurrency, limiter, policy, m, log)
	selector := usecase.NewLinkSelector(llm, policy, m, log)

	extractorCfg := usecase.DefaultExtractorConfig()
	extractorCfg.ChunkSize = cfg.ChunkSize
	extractorCfg.ChunkDelay = cfg.ChunkDelay()
	extractorCfg.MinTextLength = cfg.MinTextLength
	extractorCfg.MaxPageChars = cfg.MaxPageChars
	extractorCfg.Location = cfg.Location()
	extractor := usecase.NewBatchExtractor(llm, policy, extractorCfg, m, log)

	dupes, err := usecase.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		log.Fatal("invalid duplicate policy", zap.Error(err))
	}
	pipeline := usecase.NewPipeline(search, selector, scraper, extractor, gigRepo, policy, usecase.PipelineConfig{
		Queries:        searchQueries(cfg),
		Country:        cfg.SearchCountry,
		Location:       cfg.Location(),
		SearchCount:    cfg.SearchCount,
		QuerySpacing:   querySpacing,
		SeedURLs:       cfg.Seeds(),
		MaxDetailPages: cfg.MaxDetailPages,
		Duplicates:     dupes,
		StoreTimeout:   cfg.StoreTimeout(),
	}, m, log)

	syncManager := usecase.NewSyncManager(pipeline, queue, status, lock, usecase.SyncOptions{}, log)

	// --- Scheduler ---
	scheduler, err := cron.NewScheduler(cfg.CronSchedule, cfg.Location(), syncManager, log)
	if err != nil {
		log.Fatal("invalid cron schedule", zap.Error(err))
	}
	scheduler.Start()

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(syncManager, checks, log)
	httpRouter := router.New(apiHandler, router.Options{
		APIKey:   cfg.SyncAPIKey,
		Gatherer: reg,
		Metrics:  m,
		Logger:   log,
	})
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     httpRouter,
		ReadTimeout: 5 * time.Second,
		// POST /api/sync?wait=true holds the connection for a whole run.
		WriteTimeout: 2 * time.Hour,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	// Cancelling runs first lets waiting sync requests answer before the server drains.
	if err := syncManager.Shutdown(shutdownCtx); err != nil {
		log.Warn("sync runs did not finish", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	if browser != nil {
		if err := browser.Close(); err != nil {
			log.Warn("failed to close browser", zap.Error(err))
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warn("failed to close redis", zap.Error(err))
		}
	}
	if dbpool != nil {
		dbpool.Close()
	}
	log.Info("server exiting")
}

// searchQueries turns SEARCH_QUERIES into queries. Nil selects the built-in set.
func searchQueries(cfg *config.Config) []entity.SearchQuery {
	custom := cfg.Queries()
	if len(custom) == 0 {
		return nil
	}
	out := make([]entity.SearchQuery, 0, len(custom))
	for _, q := range custom {
		out = append(out, entity.SearchQuery{
			Query:   q,
			Options: entity.SearchOptions{Country: cfg.SearchCountry, ExtraSnippets: true},
		})
	}
	return out
}
