package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

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

// services is opened once per invocation, after flags are parsed.
type services struct {
	cfg    shared.Config
	db     *sql.DB
	cache  *redisad.Cache
	imp    *app.ImportService
	q      *app.QueryService
	closed bool
}

func openServices(ctx context.Context, delimiter string) (*services, error) {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)
	if delimiter != "" {
		cfg.CSVDelimiter = delimiter
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	log.Info().Msg("db ping ok")

	s := &services{cfg: cfg, db: db}
	var cache domain.Cache
	rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(ctx); err != nil {
		// without redis the API would keep serving the old generation
		log.Warn().Err(err).Msg("redis unavailable; cached stats expire on their TTL")
		_ = rc.Close()
	} else {
		s.cache, cache = rc, rc
	}

	repo := mysqlrepo.New(db)
	var src domain.SourceClient
	if cfg.SourceURL != "" {
		feed, err := sbrfeed.New(cfg.SourceURL, cfg.SourceToken, 2, cfg.MaxUploadBytes)
		if err != nil {
			s.Close()
			return nil, err
		}
		src = feed
	}
	s.imp = app.NewImportService(tabular.NewCSVReader(cfg.CSVDelimiter), src, repo, cache, cfg.Workers)
	s.q = app.NewQueryService(repo, cache, cfg.CacheTTL, quality.NewScorer(cfg.Weights), cfg.Workers)
	return s, nil
}

func (s *services) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	if s.cache != nil {
		_ = s.cache.Close()
	}
	_ = s.db.Close()
}

func newRootCommand() *cobra.Command {
	var delimiter string

	rootCmd := &cobra.Command{
		Use:           "ingestor",
		Short:         "Import SBR booking extracts and report PNR data quality",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&delimiter, "delimiter", "", "CSV delimiter (overrides CSV_DELIMITER)")

	open := func(cmd *cobra.Command) (context.Context, *services, func(), error) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		s, err := openServices(ctx, delimiter)
		if err != nil {
			stop()
			return nil, nil, nil, err
		}
		return ctx, s, func() { s.Close(); stop() }, nil
	}

	rootCmd.AddCommand(newImportCommand(open))
	rootCmd.AddCommand(newClearCommand(open))
	rootCmd.AddCommand(newSummaryCommand(open))
	return rootCmd
}
