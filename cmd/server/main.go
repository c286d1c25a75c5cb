package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"carhub/internal/app"
	"carhub/internal/config"
	"carhub/internal/ratelimit"
	"carhub/internal/server"
	"carhub/internal/usertoken"
	"carhub/internal/util"
	"carhub/pkg/storage"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = config.ConfigPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	savedCacheTTL, err := config.ParseSavedCacheTTL(cfg.SavedCacheTTL)
	if err != nil {
		log.Fatalf("failed to parse saved cache ttl: %v", err)
	}

	var objects storage.ObjectStore
	if !cfg.DemoMode && cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
		objects = minioStore
	}

	appCore, err := app.New(app.Config{
		DemoMode:              cfg.DemoMode,
		DatabaseURL:           cfg.DatabaseURL,
		RedisAddr:             cfg.RedisAddr,
		RedisPassword:         cfg.RedisPassword,
		SavedCacheTTL:         savedCacheTTL,
		DisableFilterFallback: cfg.DisableFilterFallback,
		AMQPURL:               cfg.AMQPURL,
		AMQPExchange:          cfg.AMQPExchange,
		Objects:               objects,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var tokenVerifier *usertoken.Verifier
	if cfg.AuthJWKSURL != "" {
		jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
		if err != nil {
			log.Fatalf("failed to parse jwt leeway: %v", err)
		}
		tokenVerifier, err = usertoken.NewVerifier(usertoken.Config{
			JWKSURL:    cfg.AuthJWKSURL,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			Leeway:     jwtLeeway,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			log.Fatalf("failed to init jwks verifier: %v", err)
		}
	}

	var bookingLimiter *ratelimit.FixedWindowLimiter
	if !cfg.DemoMode && cfg.RedisAddr != "" && cfg.BookingRateLimitPerMinute > 0 {
		bookingLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "carhub:ratelimit:bookings",
			cfg.BookingRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init booking rate limiter: %v", err)
		}
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		BookingLimiter: bookingLimiter,
		TrustedProxies: trustedProxies,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("carhub server listening", "addr", addr, "demo_mode", cfg.DemoMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
