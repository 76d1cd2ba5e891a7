package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/amirkhv/member-gate/internal/auth"
	"github.com/amirkhv/member-gate/internal/config"
	"github.com/amirkhv/member-gate/internal/database"
	"github.com/amirkhv/member-gate/internal/handler"
	"github.com/amirkhv/member-gate/internal/limiter"
	"github.com/amirkhv/member-gate/internal/logging"
	"github.com/amirkhv/member-gate/internal/queue"
	"github.com/amirkhv/member-gate/internal/repository"
	"github.com/amirkhv/member-gate/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	log, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}

	issuer := &auth.TokenIssuer{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  time.Duration(cfg.AccessTTLMin) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
	}

	svc := auth.NewService(
		repository.NewUserRepo(db),
		repository.NewLifecycleTokenRepo(db),
		issuer,
		log,
	)
	svc.Publish = queue.PublishTokenIssued

	// Redis keeps the attempt ceiling correct across instances; a
	// single instance without Redis falls back to process memory.
	var loginLimiter limiter.AttemptLimiter
	if rdb := config.NewRedisClient(); rdb != nil {
		loginLimiter = limiter.NewRedisLimiter(rdb, cfg.LoginRateLimit, cfg.LoginRateWindow)
		log.Info("login rate limiter backed by redis")
	} else {
		loginLimiter = limiter.NewMemoryLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
		log.Warn("redis unavailable, login rate limiter is process-local")
	}

	go queue.StartTokenAuditConsumer(log)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), issuer, loginLimiter, log)
	router.RegisterUsers(e, handler.NewUserHandler(svc), issuer)

	addr := ":" + cfg.Port
	log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
