package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/openshelf/library-api/internal/config"
	"github.com/openshelf/library-api/internal/database"
	"github.com/openshelf/library-api/internal/handler"
	"github.com/openshelf/library-api/internal/middleware"
	"github.com/openshelf/library-api/internal/queue"
	"github.com/openshelf/library-api/internal/repository"
	"github.com/openshelf/library-api/internal/router"
	"github.com/openshelf/library-api/internal/scheduler"
	"github.com/openshelf/library-api/internal/service"
)

func main() {
	// Load .env when present; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: a nil client disables rate limiting and caching.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and response cache disabled")
	}

	// Repositories.
	txr := repository.NewTxRunner(db)
	bookRepo := repository.NewBookRepo(db)
	loanRepo := repository.NewBorrowingRepo(db)
	resRepo := repository.NewReservationRepo(db)
	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)

	// Circulation engines. Checkout completes a matching reservation in
	// the same transaction, so the reservation service doubles as the
	// borrowing service's completion hook.
	resSvc := service.NewReservationService(
		txr, bookRepo, loanRepo, userRepo, resRepo,
		queue.PublishCirculationEvent, cfg.BufferDays, nil)
	borrowSvc := service.NewBorrowingService(
		txr, bookRepo, loanRepo, userRepo, resSvc,
		queue.PublishCirculationEvent,
		service.FinePolicy{DailyRate: cfg.FineDailyRate, GraceDays: cfg.FineGraceDays, MaxCap: cfg.FineMax},
		nil)

	e := echo.New()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	authH := handler.NewAuthHandler(cfg, userRepo, tokenRepo)
	bookH := handler.NewBookHandler(bookRepo)
	loanH := handler.NewBorrowingHandler(cfg, borrowSvc)
	resH := handler.NewReservationHandler(cfg, resSvc)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, bookH, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterMember(e, loanH, resH, cfg.JWTSecret)
	router.RegisterAdmin(e, bookH, loanH, resH, cfg.JWTSecret)

	// Daily expiry sweep plus the circulation event log consumer.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.NewSweeper(cfg.SweepHour, cfg.SweepMinute, resSvc.ExpireOverdueWindows).Start(ctx)
	go func() {
		if err := queue.StartCirculationConsumer(); err != nil {
			log.Printf("circulation-consumer: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
