// Command delivery-server runs the WebSocket fan-out service that
// carries MLSCiphertext frames between a group's members, online or
// not.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FHMS-ITS/mls-explained/internal/auth"
	"github.com/FHMS-ITS/mls-explained/internal/blobstore"
	"github.com/FHMS-ITS/mls-explained/internal/db"
	"github.com/FHMS-ITS/mls-explained/internal/deliveryserver"
)

func main() {
	log.Println("[delivery-server] starting...")

	database, err := db.New()
	if err != nil {
		log.Fatalf("[delivery-server] failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.RunMigrations("migrations"); err != nil {
		log.Fatalf("[delivery-server] failed to run migrations: %v", err)
	}

	blobCfg := blobstore.Config{
		Endpoint:  getEnvOrDefault("S3_ENDPOINT", "localhost:9000"),
		AccessKey: getEnvOrDefault("S3_ACCESS_KEY", "minioadmin"),
		SecretKey: getEnvOrDefault("S3_SECRET_KEY", "minioadmin"),
		Bucket:    getEnvOrDefault("S3_BUCKET", "mls-welcomes"),
		Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
		UseSSL:    os.Getenv("S3_USE_SSL") == "true",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := blobstore.New(ctx, blobCfg)
	if err != nil {
		log.Printf("[delivery-server] failed to initialize blob store: %v (large welcome offload disabled)", err)
		blobs = nil
	}

	var authenticator *auth.Authenticator
	if secret := os.Getenv("AUTH_TOKEN_SECRET"); secret != "" {
		authenticator = auth.NewAuthenticator([]byte(secret))
	} else {
		log.Println("[delivery-server] AUTH_TOKEN_SECRET not set, running without connection authentication")
	}

	hub := deliveryserver.NewHub(database.Postgres, database.Redis, blobs, authenticator)
	go hub.Run(ctx)

	router := deliveryserver.Router(hub)

	addr := ":" + getEnvOrDefault("PORT", "8082")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
		// Large Welcome payloads still fit under offloadThreshold before
		// being offloaded to blobstore, but the upgrade handshake itself
		// needs generous timeouts for slow mobile links.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[delivery-server] listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[delivery-server] listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[delivery-server] shutting down...")

	cancel() // stop hub.Run's select loop and its redis subscriber

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("[delivery-server] forced to shutdown: %v", err)
	}

	log.Println("[delivery-server] exited gracefully")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
