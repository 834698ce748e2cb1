package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/eventhub/auth-service/internal/api"
	"github.com/eventhub/auth-service/internal/config"
	"github.com/eventhub/auth-service/internal/handler"
	"github.com/eventhub/auth-service/internal/infrastructure/auth"
	"github.com/eventhub/auth-service/internal/infrastructure/kafka"
	"github.com/eventhub/auth-service/internal/infrastructure/redis"
	"github.com/eventhub/auth-service/internal/middleware"
	"github.com/eventhub/auth-service/internal/observability"
	core "github.com/eventhub/auth-service/internal/repository/postgres"
	service "github.com/eventhub/auth-service/internal/services"
)

func main() {
	cfg := config.Load()

	shutdown, metricsHandler := observability.Setup("auth-service")
	defer shutdown(context.Background())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	tokenRepo := core.NewPostgresRefreshTokenRepository(db)
	memberRepo := core.NewPostgresMemberRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	keys := auth.NewStaticKeyProvider(cfg.JWTSecret, cfg.JWTFallbackSecrets)
	issuer := auth.NewAccessTokenIssuer(keys, cfg.AccessTokenTTL)
	engine := service.NewRotationEngine(tokenRepo, redisClient, producer, cfg.RefreshTokenTTL)
	svc := service.NewTokenService(memberRepo, engine, issuer, cfg.RefreshTokenCookie)

	gate := middleware.NewCSRFGate(middleware.Options{
		CookieNames:      []string{cfg.AccessTokenCookie, cfg.RefreshTokenCookie},
		AuthPathPrefixes: cfg.AuthRoutePrefixes,
		CSRFCookie:       cfg.CSRFTokenCookie,
	})
	if cfg.CSRFOptionsPath != "" {
		if err := gate.WatchOverlay(cfg.CSRFOptionsPath); err != nil {
			log.Printf("Failed to watch CSRF options overlay: %v", err)
		}
	}

	authHandler := handler.NewAuthHandler(svc, handler.CookieConfig{
		Access:  cfg.AccessTokenCookie,
		Refresh: cfg.RefreshTokenCookie,
		CSRF:    cfg.CSRFTokenCookie,
		Secure:  cfg.CookieSecure,
	})
	authMiddleware := auth.Middleware(issuer, cfg.AccessTokenCookie)

	router := api.SetupRouter(authHandler, authMiddleware, gate, metricsHandler)

	server := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on :8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
