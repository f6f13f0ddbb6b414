package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/simstreet/simstreet/internal/auth"
	"github.com/simstreet/simstreet/internal/config"
	"github.com/simstreet/simstreet/internal/db"
)

// Seed the database with an admin, demo traders and demo stocks.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

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

	if err := database.EnsureMarketStatus(ctx); err != nil {
		log.Fatalf("Failed to initialize market status: %v", err)
	}

	// First check if we already have stocks
	stocks, err := database.ListStocks(ctx)
	if err != nil {
		log.Fatalf("Failed to check stocks: %v", err)
	}
	if len(stocks) > 0 {
		fmt.Printf("Database already has %d stocks. No need to seed.\n", len(stocks))
		os.Exit(0)
	}

	users := []struct {
		username string
		password string
		role     string
		balance  float64
	}{
		{"admin", "admin", auth.RoleAdmin, 0},
		{"trader1", "password1", auth.RoleTrader, cfg.StartingCash},
		{"trader2", "password2", auth.RoleTrader, cfg.StartingCash},
	}
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		if _, err := database.CreateUser(ctx, u.username, string(hash), u.role, u.balance); err != nil {
			log.Printf("Skipping user %s: %v", u.username, err)
			continue
		}
		fmt.Printf("Created user %s (%s)\n", u.username, u.role)
	}

	demoStocks := []struct {
		ticker string
		name   string
		price  float64
	}{
		{"AAPL", "Apple Inc.", 180},
		{"MSFT", "Microsoft Corporation", 410},
		{"TSLA", "Tesla, Inc.", 250},
		{"AMZN", "Amazon.com, Inc.", 175},
	}
	for _, s := range demoStocks {
		stock, err := database.CreateStock(ctx, s.ticker, s.name, s.price)
		if err != nil {
			log.Fatalf("Failed to create stock %s: %v", s.ticker, err)
		}
		fmt.Printf("Created stock %s @ %.2f\n", stock.Ticker, stock.Price)
	}

	fmt.Println("Seed complete.")
}
