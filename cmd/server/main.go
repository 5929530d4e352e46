package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-matching-engine/internal/api"
	"order-matching-engine/internal/depthcache"
	"order-matching-engine/internal/engine"
	"order-matching-engine/internal/store"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Info().Msg(".env not loaded, continuing with process environment")
	}

	log.Info().Msg("starting order matching engine server")

	db, err := store.Connect(os.Getenv("DB_DSN"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to record store")
	}
	defer func() {
		log.Info().Msg("closing record store connection")
		db.Close()
	}()

	ctx := context.Background()
	if err := store.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate record store schema")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		log.Info().Msg("closing depth cache connection")
		rdb.Close()
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", redisAddr).Msg("depth cache unreachable at startup, get_depth will fall back to the record store")
	}

	st := store.New(db)
	cache := depthcache.New(rdb, st)
	matcher := engine.New(st, cache)
	srv := api.NewServer(st, matcher, cache)

	mux := http.NewServeMux()
	srv.Routes(mux)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{Addr: addr, Handler: mux}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-stop
	log.Info().Msg("shutdown signal received, draining in-flight requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shut down")
	} else {
		log.Info().Msg("server stopped gracefully")
	}
}
