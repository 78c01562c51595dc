package main

import (
	"context"
	"log"
	stdhttp "net/http"

	"shortlink/pkg/clicks"
	"shortlink/pkg/config"
	httphandler "shortlink/pkg/http"
	"shortlink/pkg/logging"
	"shortlink/pkg/service"
	"shortlink/pkg/storage"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// The redirect server only resolves codes and records clicks. It never
// mutates links, so it carries no auth or account wiring.
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

	linkStorage := storage.NewPostgresLinkStorage(pool)
	clickStorage := storage.NewPostgresClickStorage(pool)

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
	handler := httphandler.NewHandler(linkService, nil, cfg.BaseURL)

	r := chi.NewRouter()
	r.Get("/r/{code}", handler.Redirect)

	log.Println("Starting redirect server on :" + cfg.RedirectPort)
	log.Fatal(stdhttp.ListenAndServe(":"+cfg.RedirectPort, r))
}
