package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inpass/internal/config"
	"inpass/internal/db"
	"inpass/internal/mockserver"
	"inpass/internal/mockserver/postgres"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadServerConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var store mockserver.Store = mockserver.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		pgStore := postgres.NewStore(pool)
		if err := pgStore.Init(ctx); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		store = pgStore
		logger.Info("using postgres store")
	}

	var limiter mockserver.LoginRateLimiter = mockserver.NewMemoryLoginRateLimiter(
		time.Duration(cfg.LoginWindowSeconds)*time.Second, cfg.LoginMaxAttempts)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis ping failed, using memory rate limiter", zap.Error(err))
		} else {
			limiter = mockserver.NewRedisLoginRateLimiter(client,
				time.Duration(cfg.LoginWindowSeconds)*time.Second, cfg.LoginMaxAttempts)
		}
		cancel()
	}

	issuer := mockserver.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	hub := mockserver.NewHub(logger)
	handler := mockserver.NewHandler(logger, store, issuer, hub, limiter)
	router := mockserver.NewRouter(logger, handler, hub, issuer)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting mock backend", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
