package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/salesdesk/backend/internal/application/services"
	"github.com/salesdesk/backend/internal/bootstrap"
	"github.com/salesdesk/backend/internal/infrastructure/database"
	"github.com/salesdesk/backend/internal/interfaces/rest"
)

func main() {
	// Load .env if present; real environments set variables directly
	if err := godotenv.Load(); err == nil {
		log.Println("📦 Loaded environment from .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	db, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	if err := bootstrap.InitializeSchema(db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	svcMgr := services.NewServiceManager(db)
	log.Println("🔧 Service manager initialized")

	if err := bootstrap.InitializeSystemData(svcMgr); err != nil {
		log.Fatalf("Failed to initialize system data: %v", err)
	}

	router := rest.SetupRouter(svcMgr)

	if err := svcMgr.Outbox.Start(); err != nil {
		log.Fatalf("Failed to start outbox relay: %v", err)
	}
	log.Println("📤 Outbox event relay started")

	log.Println("\n═══════════════════════════════════════════════════════════")
	log.Println("🚀 SalesDesk Backend Started Successfully")
	log.Println("═══════════════════════════════════════════════════════════")
	log.Printf("\n📍 Server:       http://localhost:%s", port)
	log.Printf("🔐 Auth API:     http://localhost:%s/api/auth", port)
	log.Printf("💾 Rows API:     http://localhost:%s/api/rows", port)
	log.Printf("📊 Schema API:   http://localhost:%s/api/columns", port)
	log.Printf("💚 Health check: http://localhost:%s/health\n", port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	svcMgr.Outbox.Stop()
	log.Println("🛑 Outbox relay stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("⚠️  Error closing database: %v", err)
	}

	log.Println("Server exiting")
}
