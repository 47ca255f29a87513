package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/riskcore/riskcore/internal/config"
	"github.com/riskcore/riskcore/internal/domain/analytics"
	"github.com/riskcore/riskcore/internal/domain/assessment"
	"github.com/riskcore/riskcore/internal/domain/progress"
	"github.com/riskcore/riskcore/internal/platform/db"
	"github.com/riskcore/riskcore/internal/platform/events"
	"github.com/riskcore/riskcore/internal/platform/insights"
	"github.com/riskcore/riskcore/internal/platform/middleware"
	"github.com/riskcore/riskcore/internal/platform/resilience"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "riskcore-server",
		Short: "Clinical risk scoring and progress analytics API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	publisher := events.NewPublisher(ctx, cfg.RedisURL, cfg.EventStream, logger)
	defer publisher.Close()

	var generator insights.Generator = insights.Disabled{}
	if cfg.OpenAIAPIKey != "" {
		generator = insights.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		logger.Info().Msg("AI insights enabled")
	}

	// One limiter guards the HTTP edge, a second guards domain writes.
	// Separate instances keep a single request from burning two tokens.
	edgeLimiter := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Window:      cfg.RateLimitWindow(),
		MaxRequests: cfg.RateLimitMax,
	})
	writeLimiter := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Window:      cfg.RateLimitWindow(),
		MaxRequests: cfg.RateLimitMax,
	})
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		OpenTimeout:      cfg.BreakerTimeout(),
	})
	cache := resilience.NewCache(resilience.CacheConfig{
		DefaultTTL: cfg.CacheTTL(),
		MaxEntries: cfg.CacheMaxEntries,
	})
	cache.StartCleanup(ctx, time.Minute)
	retryCfg := resilience.RetryConfig{
		MaxAttempts: cfg.RepoMaxRetries,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}

	assessmentRepo := assessment.NewRepoPG(pool)
	progressRepo := progress.NewRepoPG(pool)

	assessmentSvc := assessment.NewService(assessmentRepo, writeLimiter, breaker, cache,
		retryCfg, generator, publisher, logger)
	progressSvc := progress.NewService(progressRepo, writeLimiter, breaker, cache,
		retryCfg, publisher, logger)
	analyticsSvc := analytics.NewService(assessmentRepo, progressRepo, writeLimiter,
		breaker, cache, retryCfg, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.ActorHeader},
	}))

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(edgeLimiter))

	assessment.NewHandler(assessmentSvc).RegisterRoutes(apiV1)
	progress.NewHandler(progressSvc).RegisterRoutes(apiV1)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
