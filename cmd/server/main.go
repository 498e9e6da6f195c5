package main

import (
	"context"
	"log"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/jdkroon/adslot-backend/internal/cache"
	"github.com/jdkroon/adslot-backend/internal/config"
	"github.com/jdkroon/adslot-backend/internal/database"
	"github.com/jdkroon/adslot-backend/internal/handler"
	"github.com/jdkroon/adslot-backend/internal/middleware"
	"github.com/jdkroon/adslot-backend/internal/queue"
	"github.com/jdkroon/adslot-backend/internal/repository"
	"github.com/jdkroon/adslot-backend/internal/router"
	"github.com/jdkroon/adslot-backend/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it availability is computed per request,
	// rate limiting is off and the sweep lock falls back to in-process.
	rdb := config.NewRedisClient()
	var locker *redislock.Client
	if rdb != nil {
		locker = redislock.New(rdb)
	}

	capacityRepo := repository.NewCapacityRepo(db)
	waitlistRepo := repository.NewWaitlistRepo(db)
	locationRepo := repository.NewLocationRepo(db)
	contractRepo := repository.NewContractRepo(db)
	snapshotRepo := repository.NewSnapshotRepo(db)
	settleRepo := repository.NewSettlementRepo(db)
	adminRepo := repository.NewAdminRepo(db)

	availability := cache.NewRedisAvailability(rdb, cfg.AvailabilityTTL)
	capacity := service.NewCapacityService(capacityRepo, waitlistRepo, availability)
	waitlist := service.NewWaitlistService(waitlistRepo, capacity, &queue.InvitePublisher{URL: cfg.AMQPURL}, locker, cfg.ClaimWindow)
	claims := service.NewClaimService(waitlistRepo, capacity, cfg.JWTSecret, cfg.GrantTTLMin)
	settlement := service.NewSettlementService(snapshotRepo, contractRepo, locationRepo, settleRepo)
	sync := service.NewSyncService(contractRepo, locationRepo, snapshotRepo, availability)

	e := echo.New()
	e.Use(middleware.Correlation())
	limiter := middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb)

	waitlistHandler := handler.NewWaitlistHandler(waitlist)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(adminRepo, cfg.JWTSecret, cfg.AccessTTLMin))
	router.RegisterPublic(e,
		handler.NewAvailabilityHandler(capacity),
		waitlistHandler,
		handler.NewClaimHandler(claims),
		limiter,
	)
	router.RegisterAdmin(e, cfg.JWTSecret,
		waitlistHandler,
		handler.NewSettlementHandler(settlement, settleRepo),
		handler.NewSyncHandler(sync),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Invite consumer drains the claim-invite queue; it reconnects on its
	// own, so a missing broker only delays delivery.
	go func() {
		if err := queue.StartInviteConsumer(cfg.AMQPURL); err != nil {
			log.Printf("invite consumer: %v", err)
		}
	}()
	go waitlist.RunSweepLoop(ctx, cfg.SweepInterval)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
