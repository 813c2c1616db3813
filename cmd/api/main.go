package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"btcarts/docs"
	"btcarts/internal/config"
	"btcarts/internal/database"
	"btcarts/internal/database/migration"
	handlers "btcarts/internal/http/handler"
	"btcarts/internal/http/middleware"
	"btcarts/internal/logging"
	"btcarts/internal/otel"
	"btcarts/internal/repository"
	mongorepo "btcarts/internal/repository/mongo"
	"btcarts/internal/repository/postgres"
	"btcarts/internal/reviewtoken"
	"btcarts/internal/service"
	"btcarts/internal/storage"
)

// backend is the selected persistence pair plus what /health should check.
type backend struct {
	repo       repository.ApplicationRepository
	store      storage.BlobStore
	pingers    []handlers.Pinger
	collectors []prometheus.Collector
	close      func(ctx context.Context) error
}

// @title Arts Grants Admin API
// @version 1.0
// @BasePath /
// @securityDefinitions.basic BasicAuth
func main() {
	// Load configuration from file and environment (.env auto-loaded if present)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := otel.Init(ctx, log)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hasher, err := reviewtoken.NewHasher(cfg.Review.TokenSecret)
	if err != nil {
		log.Error("review links unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}

	appSvc := service.NewApplicationService(be.repo, hasher, service.ShareSettings{
		DefaultTTL:      cfg.Review.DefaultShareTTL,
		MaxActiveShares: cfg.Review.MaxActiveShares,
	})
	fileSvc := service.NewFileDeliveryService(be.repo, be.store, hasher)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(be.collectors...)
	metrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Error("failed to register metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger(log))
	app.Use(metrics.Handler())
	// Admin gate runs before routing so unconfigured deployments expose nothing
	app.Use(middleware.AdminGate(cfg.Admin))
	if !cfg.Admin.Enabled() {
		log.Warn("admin credentials not configured; admin surface disabled")
	}

	handlers.RegisterRoutes(app, handlers.Deps{
		Applications:    appSvc,
		Files:           fileSvc,
		Health:          be.pingers,
		Deliveries:      metrics,
		Log:             log,
		ReviewRateLimit: cfg.Review.RateLimitPerMinute,
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("server starting", slog.String("addr", addr), slog.String("driver", cfg.StoreDriver))
		if err := app.Listen(addr); err != nil {
			log.Error("failed to start server", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}
	if err := be.close(shutdownCtx); err != nil {
		log.Error("failed to close store", slog.String("error", err.Error()))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("failed to flush traces", slog.String("error", err.Error()))
	}
	log.Info("server exited gracefully")
}

func openBackend(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		objStore, err := storage.NewMinIO(cfg.MinIO)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return &backend{
			repo:       postgres.NewApplicationPostgres(db),
			store:      objStore,
			pingers:    []handlers.Pinger{db, objStore},
			collectors: []prometheus.Collector{collectors.NewDBStatsCollector(db, cfg.Database.Name)},
			close:      func(context.Context) error { return db.Close() },
		}, nil

	default:
		handle := database.NewMongoHandle(cfg.Mongo)
		db, err := handle.Database(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return &backend{
			repo:    mongorepo.NewApplicationMongo(db),
			store:   storage.NewGridFS(db, cfg.Mongo.Bucket),
			pingers: []handlers.Pinger{handle},
			close:   handle.Disconnect,
		}, nil
	}
}
