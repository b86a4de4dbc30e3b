package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"pnr_quality/internal/quality"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MetricsAddr    string
	MySQLDSN       string
	RedisAddr      string
	RedisDB        int
	RedisPass      string
	SourceURL      string
	SourceToken    string
	Workers        int
	ImportsPerMin  int
	MaxUploadBytes int64
	CSVDelimiter   string
	CacheTTL       time.Duration
	Weights        quality.Weights
}

// Load reads the environment; an optional .env in the working directory
// fills in anything not already set.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Int("default", def).Msg("not an integer; using default")
		}
		return def
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    env("METRICS_ADDR", ""),
		MySQLDSN:       env("MYSQL_DSN", "root:root@tcp(localhost:3306)/pnrq?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		SourceURL:      env("SBR_SOURCE_URL", ""),
		SourceToken:    env("SBR_SOURCE_TOKEN", ""),
		Workers:        atoi("IMPORT_WORKERS", 8),
		ImportsPerMin:  atoi("IMPORT_RATE_PER_MIN", 6),
		MaxUploadBytes: int64(atoi("MAX_UPLOAD_MB", 64)) << 20,
		CSVDelimiter:   env("CSV_DELIMITER", ","),
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		Weights:        weights(os.Getenv("SCORE_WEIGHTS")),
	}
	if c.SourceURL != "" && c.SourceToken == "" {
		log.Warn().Msg("SBR_SOURCE_TOKEN is empty")
	}
	return c
}

func weights(spec string) quality.Weights {
	if spec == "" {
		return quality.DefaultWeights()
	}
	w, err := quality.ParseWeights(spec)
	if err != nil {
		log.Warn().Err(err).Str("SCORE_WEIGHTS", spec).Msg("invalid score weights; using defaults")
		return quality.DefaultWeights()
	}
	if w.Total() != quality.MaxScore {
		log.Warn().Int("total", w.Total()).Msg("score weights do not sum to 100; scores are clamped")
	}
	return w
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
