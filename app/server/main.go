package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/astromitra/astromitra/config"
	"github.com/astromitra/astromitra/internal/api/handlers"
	"github.com/astromitra/astromitra/internal/api/middleware"
	"github.com/astromitra/astromitra/internal/api/routes"
	"github.com/astromitra/astromitra/internal/cache"
	applog "github.com/astromitra/astromitra/internal/logger"
	"github.com/astromitra/astromitra/internal/media"
	"github.com/astromitra/astromitra/internal/notifier"
	"github.com/astromitra/astromitra/internal/repositories/postgres"
	"github.com/astromitra/astromitra/internal/room"
	"github.com/astromitra/astromitra/internal/services"
	"github.com/astromitra/astromitra/internal/workers"
)

func main() {
	_ = godotenv.Load()

	l := applog.New()

	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	l.Info("PostgreSQL connected")

	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	l.Info("Redis connected")

	roomCfg := config.LoadRoom()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := postgres.NewSessionRepo(config.PostgresDB)
	jsonCache := cache.NewRedisCache(config.RedisClient, "astromitra")
	notif := notifier.NewRedisNotifier(config.RedisClient, l)
	mediaCtl := media.NewRedisController(config.RedisClient)
	mediaTokens := media.NewTokenProvider(roomCfg.MediaTokenSecret, roomCfg.MediaTokenTTL)

	hub := room.NewHub(ctx, nil, room.Options{
		PresenceGrace: roomCfg.PresenceGrace,
		TickInterval:  roomCfg.TickInterval,
		MaxFileBytes:  roomCfg.MaxFilePayloadBytes,
	}, l)

	sessionSvc := services.NewSessionService(repo, hub, notif, mediaCtl, l)
	hub.SetLifecycle(sessionSvc)

	tokenSvc := services.NewTokenService(repo, jsonCache, roomCfg.LinkValidityMultiplier)

	sweeper := &workers.ExpiryWorker{
		Repo:               repo,
		Hub:                hub,
		Notifier:           notif,
		Logger:             l,
		Interval:           roomCfg.ExpirySweepInterval,
		ValidityMultiplier: roomCfg.LinkValidityMultiplier,
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("expiry worker start error: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(l))

	routes.RegisterRoutes(r, routes.Deps{
		Session: handlers.NewSessionHandler(tokenSvc, sessionSvc),
		Media:   handlers.NewMediaHandler(tokenSvc, mediaTokens),
		WS:      handlers.NewWSHandler(tokenSvc, sessionSvc, hub),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
