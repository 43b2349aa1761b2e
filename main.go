package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/storefrontscraper/config"
	"sjsage522/storefrontscraper/helpers"
	"sjsage522/storefrontscraper/internal/export"
	"sjsage522/storefrontscraper/internal/extractor"
	"sjsage522/storefrontscraper/internal/fetch"
	"sjsage522/storefrontscraper/logger"
	"sjsage522/storefrontscraper/pkg/errors"
	"sjsage522/storefrontscraper/services/cache"
	"sjsage522/storefrontscraper/services/publisher"
	"sjsage522/storefrontscraper/services/worker"

	"github.com/joho/godotenv"
)

// robotsAgent is the user agent group consulted in robots.txt
const robotsAgent = "storefrontscraper"

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("mode", cfg.Mode).
		Str("method", cfg.Method).
		Str("seller", cfg.SellerID).
		Strs("engines", cfg.EngineNames()).
		Strs("formats", cfg.Formats()).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal, finishing pages in flight")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	strategy, err := extractor.ParseStrategy(cfg.Strategy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid extraction strategy")
	}
	ext := extractor.New(extractor.Options{
		Strategy:       strategy,
		WindowRadius:   cfg.WindowRadius,
		PriceCap:       cfg.PriceCap,
		BaseURL:        cfg.BaseURL,
		ExcludeMarkers: cfg.ExcludeMarkers,
	})

	var fetcher fetch.PageFetcher
	if cfg.Mode == config.ModeLive {
		fetcher, err = newFetcher(cfg, services.Cache)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create fetcher")
		}
	}

	w := worker.NewWorker(
		worker.Options{
			Mode:          cfg.Mode,
			InputDir:      cfg.InputDir,
			OutputDir:     cfg.OutputDir,
			BaseName:      cfg.OutputBaseName(),
			SkipLogPath:   cfg.SkipLog,
			MaxPages:      cfg.MaxPages,
			MaxEmptyPages: cfg.MaxEmptyPages,
			GroupSize:     cfg.GroupSize,
			Workers:       cfg.Workers,
			PriceCap:      cfg.PriceCap,
			Environment:   cfg.Environment,
			Target:        cfg.Target,
		},
		fetcher,
		ext,
		services.Writers,
		services.Publisher,
		helpers.NewLogger(cfg.ErrorLogPath),
	)

	summary, err := w.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Run failed")
		services.Cleanup()
		os.Exit(1)
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("exported", summary.Exported).
		Int("skipped", summary.Skipped).
		Str("skip_log", summary.SkipLog).
		Strs("destinations", summary.Destinations).
		Msg("Done")
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Writers   []export.Writer
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
		s.Publisher = nil
	}
	export.CloseAll(s.Writers)
	s.Writers = nil
}

// initializeServices initializes the cache, publisher and export sinks.
// Memcache and Redis are optional; without them the block cache lives in
// memory and nothing is published.
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unreachable, using in-memory block cache")
			services.Cache = cache.NewMemoryCache()
		} else {
			services.Cache = mc
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	} else {
		services.Cache = cache.NewMemoryCache()
	}

	// Initialize publisher
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(ctx); err != nil {
			redisPublisher.Close()
			return nil, errors.NewPublisher(cfg.RedisAddr, "connect to redis", err)
		}
		services.Publisher = redisPublisher

		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	writers, err := export.NewWriters(ctx, cfg.Formats(), export.Options{
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		services.Cleanup()
		return nil, err
	}
	services.Writers = writers

	return services, nil
}

// newFetcher builds the engine fallback chain in the configured order
func newFetcher(cfg *config.Config, blockCache cache.CacheService) (*fetch.Fetcher, error) {
	var engines []fetch.Engine
	for _, name := range cfg.EngineNames() {
		switch name {
		case fetch.EngineHTTP:
			engines = append(engines, fetch.NewHTTPEngine(cfg.FetchTimeout))
		case fetch.EngineChrome:
			engines = append(engines, fetch.NewChromeEngine(fetch.ChromeOptions{
				Headless:          cfg.Headless,
				Timeout:           cfg.FetchTimeout,
				Scroll:            cfg.Method == config.MethodHTML,
				ScrollMaxAttempts: cfg.ScrollMaxAttempts,
				ScrollNoChange:    cfg.ScrollNoChange,
				ExecPath:          cfg.ChromePath,
			}))
		default:
			return nil, errors.NewConfiguration("unknown engine "+name, nil)
		}
	}

	opts := fetch.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		MinPageBytes: cfg.MinPageBytes,
		Blocks:       fetch.NewBlockCache(blockCache, cfg.BlockTime),
		Pacer:        fetch.NewPacer(cfg.RequestsPerSecond, cfg.RequestDelayMin, cfg.RequestDelayMax),
		Capture:      fetch.NewCaptureStore(cfg.CaptureDir),
	}
	if cfg.RespectRobots {
		opts.Robots = fetch.NewRobotsPolicy(robotsAgent)
	}
	return fetch.New(opts, engines...), nil
}
