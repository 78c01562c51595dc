package main

import (
	"context"
	"log"
	stdhttp "net/http"

	"shortlink/pkg/clicks"
	"shortlink/pkg/config"
	httphandler "shortlink/pkg/http"
	"shortlink/pkg/logging"
	"shortlink/pkg/middleware"
	"shortlink/pkg/service"
	"shortlink/pkg/storage"
	"shortlink/pkg/users"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		log.Fatal(err)
	}

	linkStorage := storage.NewPostgresLinkStorage(pool)
	clickStorage := storage.NewPostgresClickStorage(pool)

	// With Redis configured, clicks go through the queue and a worker
	// drains them; otherwise they are written inline.
	var recorder clicks.Recorder = clicks.NewStoreRecorder(clickStorage, logger)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		redisClient := redis.NewClient(opt)
		defer redisClient.Close()

		recorder = clicks.NewQueueRecorder(redisClient, logger)
		worker := clicks.NewWorker(redisClient, clickStorage, logger)
		go worker.Run(ctx)
	}

	linkService := service.NewLinkService(linkStorage, clickStorage, recorder, logger)

	var accounts *users.KeycloakClient
	if cfg.Keycloak.AuthServerURL != "" {
		accounts = users.NewKeycloakClient(cfg.Keycloak, logger)
	}

	var oauthMiddleware *middleware.OAuthMiddleware
	if cfg.OIDCIssuer != "" {
		oauthMiddleware, err = middleware.NewOAuthMiddleware(middleware.OAuthConfig{
			IssuerURL: cfg.OIDCIssuer,
			Audience:  cfg.OIDCAudience,
		}, logger)
		if err != nil {
			log.Fatal("Failed to create OAuth middleware:", err)
		}
	}

	handler := httphandler.NewHandler(linkService, accounts, cfg.BaseURL)

	r := chi.NewRouter()
	httphandler.SetupRoutes(r, handler, oauthMiddleware)

	log.Println("Starting API server on :" + cfg.APIPort)
	log.Fatal(stdhttp.ListenAndServe(":"+cfg.APIPort, r))
}
