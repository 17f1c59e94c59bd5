package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"tenderlens/db"
	"tenderlens/db/migrations"
	"tenderlens/internal/analytics"
	"tenderlens/internal/cache"
	"tenderlens/internal/config"
	"tenderlens/internal/handlers"
	"tenderlens/internal/ingest"
	"tenderlens/internal/logging"
	"tenderlens/internal/metrics"
	"tenderlens/internal/redisclient"
)

func main() {
	configFile := flag.String("config", "", "path to tenderlens.yaml")
	envFile := flag.String("env", "", "path to a .env file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logging.New(cfg.Logging)

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	loc, err := cfg.Analytics.Location()
	if err != nil {
		return err
	}

	dbConn, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	dbConn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbConn.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbConn.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// Миграции при старте, если включены в конфиге
	if cfg.Database.RunMigrations {
		if err := migrations.Run(ctx, dbConn.DB); err != nil {
			return err
		}
		if version, err := migrations.Version(dbConn.DB); err == nil {
			log.WithField("version", version).Info("database schema up to date")
		}
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.New()
	}

	// Redis опционален, без него работает только локальный кэш
	redisClient := redisclient.New(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisclient.Ping(ctx, redisClient); err != nil {
			log.WithError(err).Warn("redis unreachable, shared cache tier will miss until it recovers")
		}
	}

	local := cache.New(cfg.Cache.Capacity, cache.WithObserver(recorder))
	local.StartJanitor(ctx, cfg.Cache.SweepInterval)
	viewCache := cache.NewTiered(local, cache.NewRemoteCache(redisClient, cfg.Redis.KeyPrefix, recorder), log)

	store := db.NewStorage(dbConn)
	engine := analytics.NewEngine(store,
		analytics.WithLogger(log),
		analytics.WithRecorder(recorder),
		analytics.WithQueryTimeout(cfg.Analytics.QueryTimeout),
	)
	dashboard := analytics.NewDashboard(engine, viewCache,
		analytics.WithCacheTTL(cfg.Cache.TTL),
		analytics.WithLocation(loc),
		analytics.WithDashboardLogger(log),
	)
	importer := ingest.NewService(store,
		ingest.WithInvalidator(dashboard),
		ingest.WithRecorder(recorder),
		ingest.WithLogger(log),
		ingest.WithLocation(loc),
	)

	h := handlers.NewHandler(store, dashboard, importer, log)
	h.BodyLimit = cfg.Server.BodyLimitBytes()

	opts := handlers.RouterOptions{
		JWTSecret:    cfg.Auth.JWTSecret,
		TenantHeader: cfg.Auth.TenantHeader,
	}
	if recorder != nil {
		opts.Metrics = recorder.Middleware
		opts.MetricsHandler = recorder.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warnf("auth.jwt_secret is empty, trusting the %s header", cfg.Auth.TenantHeader)
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handlers.NewRouter(h, opts),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
