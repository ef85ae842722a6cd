package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"otc-backend/internal/app"
	"otc-backend/internal/config"
	"otc-backend/internal/db"
)

// Runs a single reconciliation sweep and exits. Useful from cron or for
// ad-hoc convergence after an incident.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db.InitDB()
	defer db.CloseDB()

	container, err := app.InitializeContainer()
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer container.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	health := container.ReconcileService.CheckHealth(ctx)
	for chain, reachable := range health.Ledgers {
		mark := "✅"
		if !reachable {
			mark = "❌"
		}
		fmt.Printf("%s ledger %s\n", mark, chain)
	}

	updated, failed, err := container.ReconcileService.SweepActive(ctx)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
	fmt.Printf("✅ Sweep completed: %d updated, %d failed\n", updated, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
