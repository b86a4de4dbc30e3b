package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "pnr_quality/internal/adapters/http_server"
	"pnr_quality/internal/adapters/observability"
	redisad "pnr_quality/internal/adapters/redis"
	"pnr_quality/internal/adapters/sbrfeed"
	"pnr_quality/internal/adapters/tabular"
	"pnr_quality/internal/app"
	"pnr_quality/internal/domain"
	"pnr_quality/internal/quality"
	"pnr_quality/internal/shared"
	mysqlrepo "pnr_quality/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	var cache domain.Cache
	rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable; serving uncached")
	} else {
		cache = rc
	}
	var source domain.SourceClient
	if cfg.SourceURL != "" {
		feed, err := sbrfeed.New(cfg.SourceURL, cfg.SourceToken, 2, cfg.MaxUploadBytes)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid SBR_SOURCE_URL")
		}
		source = feed
	}

	scorer := quality.NewScorer(cfg.Weights)
	q := app.NewQueryService(repo, cache, cfg.CacheTTL, scorer, cfg.Workers)
	imp := app.NewImportService(tabular.NewCSVReader(cfg.CSVDelimiter), source, repo, cache, cfg.Workers)

	// http
	srv := server.New(server.Options{ImportsPerMin: cfg.ImportsPerMin})
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, I: imp, MaxUploadBytes: cfg.MaxUploadBytes})

	log.Info().Str("addr", cfg.HTTPAddr).Interface("weights", cfg.Weights).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	_ = rc.Close()
	_ = db.Close()
	log.Info().Msg("API stopped")
}
