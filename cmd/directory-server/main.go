// Command directory-server runs the HTTP service members publish their
// init key to and other members fetch it from, so that Add can look up
// the init key of the person being added.
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
	"github.com/FHMS-ITS/mls-explained/internal/db"
	"github.com/FHMS-ITS/mls-explained/internal/directoryserver"
	"github.com/FHMS-ITS/mls-explained/internal/ratelimit"
)

func main() {
	log.Println("[directory-server] starting...")

	database, err := db.New()
	if err != nil {
		log.Fatalf("[directory-server] failed to connect to database: %v", err)
	}
	defer database.Close()

	var authenticator *auth.Authenticator
	if secret := os.Getenv("AUTH_TOKEN_SECRET"); secret != "" {
		authenticator = auth.NewAuthenticator([]byte(secret))
	} else {
		log.Println("[directory-server] AUTH_TOKEN_SECRET not set, running without publish authentication")
	}

	limiter := ratelimit.NewLimiter(database.Redis)

	svc := directoryserver.NewService(database.Postgres, authenticator, limiter)
	if err := svc.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("[directory-server] failed to ensure schema: %v", err)
	}

	router := directoryserver.Router(svc)

	addr := ":" + getEnvOrDefault("PORT", "8081")
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[directory-server] listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[directory-server] listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[directory-server] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("[directory-server] forced to shutdown: %v", err)
	}

	log.Println("[directory-server] exited gracefully")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
