package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lmasson/giftwise-api/api/swagger"
	"github.com/lmasson/giftwise-api/internal/handler"
	"github.com/lmasson/giftwise-api/internal/middleware"
	"github.com/lmasson/giftwise-api/internal/repository"
	"github.com/lmasson/giftwise-api/internal/service"
	"github.com/lmasson/giftwise-api/internal/validation"
	"github.com/lmasson/giftwise-api/pkg/cache"
	"github.com/lmasson/giftwise-api/pkg/config"
	"github.com/lmasson/giftwise-api/pkg/database"
	"github.com/lmasson/giftwise-api/pkg/hashing"
	"github.com/lmasson/giftwise-api/pkg/logger"
	"github.com/lmasson/giftwise-api/pkg/mail"
	corsmiddleware "github.com/lmasson/giftwise-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lmasson/giftwise-api/pkg/middleware/requestid"
)

// @title Giftwise API
// @version 1.0.0
// @description Gift tracking API with token based authentication
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rate limiting disabled", "error", err)
		redisClient = nil
	}

	validate := validation.New()
	hasher := hashing.NewArgon2Hasher(cfg.Hashing)
	notifier := mail.NewClient(cfg.Mail)

	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	resetRepo := repository.NewResetTokenRepository(db)

	tokenService := service.NewTokenService(refreshRepo, hasher, logr, cfg.Tokens.RefreshExpiration)
	authService := service.NewAuthService(userRepo, tokenService, hasher, validate, logr, cfg.JWT)
	resetService := service.NewPasswordResetService(userRepo, resetRepo, tokenService, hasher, validate, logr, cfg.Tokens.ResetExpiration)
	verificationService := service.NewVerificationService(userRepo, hasher, logr, cfg.Tokens.VerificationExpiration)
	userService := service.NewUserService(userRepo, validate, logr)
	metricsService := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authService, resetService, verificationService, notifier, logr, cfg)
	userHandler := handler.NewUserHandler(userService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Handle)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.Use(middleware.RateLimit(redisClient, cfg.RateLimit, logr))
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/verify-email", authHandler.VerifyEmail)
		auth.POST("/resend-verification", authHandler.ResendVerification)
	}

	users := api.Group("/users", middleware.JWT(authService))
	{
		users.GET("/me", userHandler.Me)
		users.PUT("/me/budget", userHandler.UpdateBudget)
		users.DELETE("/me/budget", userHandler.ClearBudget)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
