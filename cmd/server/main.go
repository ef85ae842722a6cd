package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"otc-backend/internal/app"
	"otc-backend/internal/config"
	"otc-backend/internal/db"
	"otc-backend/internal/handlers"
	"otc-backend/internal/router"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

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
	container.StartBackgroundServices()
	defer container.Shutdown()

	h := &router.Handlers{
		Quote:     handlers.NewQuoteHandler(container.QuoteService),
		Offer:     handlers.NewOfferHandler(container.Desk, container.QuoteService),
		AdminDesk: handlers.NewAdminDeskHandler(container.Desk, config.AppConfig.Desk.Owner),
		AdminAuth: handlers.NewAdminAuthHandler(),
		Health:    handlers.NewHealthHandler(container.ReconcileService),
	}
	engine := router.SetupRouter(h, logger)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("🚀 OTC backend listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}
	log.Println("✅ Server stopped")
}
