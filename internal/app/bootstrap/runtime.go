// Package bootstrap builds the process collaborators from configuration.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	appconfig "github.com/wolfman30/dental-whatsapp-bot/internal/config"
	"github.com/wolfman30/dental-whatsapp-bot/internal/gsuite"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool opens the pgx pool, or returns nil when DATABASE_URL is
// unset.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// needsGoogle reports whether any backend talks to Google APIs.
func needsGoogle(cfg *appconfig.Config) bool {
	return cfg.LedgerBackend == "sheets" || cfg.CalendarBackend == "google"
}

// BuildGoogleOptions loads the service account once for Sheets and Calendar.
func BuildGoogleOptions(cfg *appconfig.Config) ([]option.ClientOption, error) {
	if !needsGoogle(cfg) {
		return nil, nil
	}
	opts, err := gsuite.ClientOptions(gsuite.Credentials{
		JSON: cfg.GoogleCredentials,
		File: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: google credentials: %w", err)
	}
	return opts, nil
}
