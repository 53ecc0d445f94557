// Command marketauthd runs the marketplace auth service: SQLite-backed
// account store, Redis-backed lockout and throttles, HTTP surface on Gin.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tautanid/marketauth"
	"github.com/tautanid/marketauth/httpapi"
	"github.com/tautanid/marketauth/store/gormstore"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	store, err := gormstore.Open(envOr("DB_PATH", "marketauth.db"))
	if err != nil {
		logger.Error("open account store", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	cfg := marketauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(jwtSecret)

	engine, err := marketauth.New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithAccountStore(store).
		WithAuditSink(marketauth.NewJSONWriterSink(os.Stdout)).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Error("build auth engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	addr := envOr("LISTEN_ADDR", ":8080")
	logger.Info("marketauthd listening", "addr", addr)

	router := httpapi.New(engine, logger).Router()
	if err := router.Run(addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
