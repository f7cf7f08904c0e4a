package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"backpack-auth/internal/config"
	"backpack-auth/internal/db"
	"backpack-auth/internal/email"
	apihttp "backpack-auth/internal/http"
	"backpack-auth/internal/repository"
	"backpack-auth/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	userRepo := repository.NewPgUserRepository(pool, cfg.DBQueryTimeout)

	var emailSender email.Sender = email.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		challenges   service.ChallengeStore
		resetLimiter = service.NewAttemptLimiter(cfg.ResetRequestWindow, cfg.ResetMaxRequests)
		totpLimiter  = service.NewAttemptLimiter(cfg.TOTPAttemptWindow, cfg.TOTPMaxAttempts)
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed; using in-memory stores", zap.Error(err))
		} else {
			challenges = service.NewRedisChallengeStore(redisClient)
			resetLimiter = service.NewRedisAttemptLimiter(redisClient, "auth:reset:rl:", cfg.ResetRequestWindow, cfg.ResetMaxRequests)
			totpLimiter = service.NewRedisAttemptLimiter(redisClient, "auth:totp:rl:", cfg.TOTPAttemptWindow, cfg.TOTPMaxAttempts)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(cfg.JWTSecret, cfg.JWTSessionTTL, challenges)
	userSvc := service.NewUserService(logger, userRepo)
	twoFactorSvc := service.NewTwoFactorService(logger, userRepo, totpLimiter, cfg.TwoFactorIssuer)
	resetSvc := service.NewPasswordResetService(logger, userRepo, emailSender, resetLimiter, cfg.AppURL)
	authSvc := service.NewAuthService(logger, userSvc, twoFactorSvc, jwtSvc)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := apihttp.NewRouter(logger,
		apihttp.RouterConfig{
			AllowedOrigins:    cfg.AllowedOrigins,
			Health:            func(ctx context.Context) error { return db.Ping(ctx, pool) },
			RequestsPerSecond: cfg.AuthRateLimit,
		},
		jwtSvc,
		apihttp.NewAuthHandler(logger, authSvc),
		apihttp.NewTwoFactorHandler(logger, authSvc, twoFactorSvc, jwtSvc),
		apihttp.NewPasswordHandler(logger, resetSvc, cfg.IsDevelopment()),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
