package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/simstreet/simstreet/internal/api"
	"github.com/simstreet/simstreet/internal/auth"
	"github.com/simstreet/simstreet/internal/cache"
	"github.com/simstreet/simstreet/internal/config"
	"github.com/simstreet/simstreet/internal/db"
	"github.com/simstreet/simstreet/internal/market"
	"github.com/simstreet/simstreet/internal/trading"
	"github.com/simstreet/simstreet/internal/ws"
)

// Main entry point: loads config, connects storage and cache, and wires
// the trading engine, market registry and broadcast hub behind the router.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	// The singleton status row is created here, once, so reads never race
	// on first use.
	if err := database.EnsureMarketStatus(ctx); err != nil {
		log.Fatalf("Failed to initialize market status: %v", err)
	}

	// Optional Redis quote cache; a nil client passes reads through.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
	}
	quotes := cache.NewStockCache(rdb, 0, database, "stocks")

	hub := ws.NewHub(logger)
	registry := market.NewRegistry(database, quotes, quotes, hub, logger)
	developments := market.NewDevelopments(database, registry, logger)
	engine := trading.NewEngine(database, quotes, database, logger)
	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.StartingCash)

	handler := api.NewHandler(authService, engine, registry, developments, hub, logger)

	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/", handler.Routes())

	logger.Info("starting server", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
