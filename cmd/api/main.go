package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	_ "github.com/redmonkez12/payflow-auth/docs" // Swagger docs (generated)
	"github.com/redmonkez12/payflow-auth/internal/auth"
	"github.com/redmonkez12/payflow-auth/internal/config"
	"github.com/redmonkez12/payflow-auth/internal/database"
	"github.com/redmonkez12/payflow-auth/internal/delivery"
	httpServer "github.com/redmonkez12/payflow-auth/internal/http"
	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/metrics"
	"github.com/redmonkez12/payflow-auth/internal/otp"
	"github.com/redmonkez12/payflow-auth/internal/user"
)

// @title           PayFlow Auth API
// @version         1.0
// @description     Email and password signup with OTP second-factor login.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/auth

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"token_format", cfg.Auth.TokenFormat,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("database migrated", "applied", applied)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = initRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
	}

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	hasher, err := auth.NewMultiHasher(cfg.Auth.PasswordHasher, auth.DefaultArgon2Params, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	tokenService, err := auth.NewTokenService(cfg.Auth.TokenFormat, tokenKey(cfg.Auth), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	deliverer, err := delivery.New(cfg.OTP.Delivery, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize otp delivery: %w", err)
	}
	if !cfg.Server.IsDevelopment() {
		logger.Warn("login responses carry the otp code on every delivery channel", "otp_delivery", cfg.OTP.Delivery)
	}

	userRepo := user.NewRepository(db, nil)
	otpRepo := otp.NewRepository(db, nil)

	authService := auth.NewService(userRepo, otpRepo, hasher, tokenService, deliverer, m, auth.Options{
		TokenTTL: cfg.Auth.TokenTTL,
		OTPTTL:   cfg.OTP.TTL,
	})

	sweeperOpts := []otp.SweeperOption{otp.WithMetrics(m)}
	if redisClient != nil {
		sweeperOpts = append(sweeperOpts, otp.WithLocker(otp.NewRedisLock(redisClient, "")))
	}
	sweeper := otp.NewSweeper(otpRepo, cfg.OTP.SweepInterval, logger, sweeperOpts...)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	router := httpServer.NewRouter(httpServer.RouterDeps{
		Config:         cfg,
		AuthHandler:    auth.NewHandler(authService),
		AuthMiddleware: auth.NewMiddleware(authService),
		Logger:         logger,
		Metrics:        m,
	})

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		stop()
		<-sweeperDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	<-sweeperDone

	return nil
}

func tokenKey(cfg config.AuthConfig) []byte {
	if cfg.TokenFormat == auth.TokenFormatJWT {
		return []byte(cfg.JWTSecret)
	}
	return []byte(cfg.PasetoKey)
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
