package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Garima-Shrestha/novella-sub000/internal/app"
	"github.com/Garima-Shrestha/novella-sub000/internal/catalog"
	"github.com/Garima-Shrestha/novella-sub000/internal/config"
	"github.com/Garima-Shrestha/novella-sub000/internal/epay"
	"github.com/Garima-Shrestha/novella-sub000/internal/ratelimit"
	"github.com/Garima-Shrestha/novella-sub000/internal/server"
	"github.com/Garima-Shrestha/novella-sub000/internal/util"
	"github.com/Garima-Shrestha/novella-sub000/pkg/storage"
	"github.com/Garima-Shrestha/novella-sub000/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	gormStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	objects, err := storage.NewMinioStore(
		cfg.MinioEndpoint,
		cfg.MinioAccessKey,
		cfg.MinioSecretKey,
		cfg.MinioBucket,
		cfg.PublicBaseURL,
		cfg.MinioUseSSL,
	)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	bookCatalog, err := catalog.New(catalog.Config{
		Content: gormStore,
		Objects: objects,
	})
	if err != nil {
		log.Fatalf("failed to init catalog: %v", err)
	}

	gateway := epay.NewClient(epay.Config{
		BaseURL:    cfg.EpayBaseURL,
		SecretKey:  cfg.EpaySecretKey,
		ReturnURL:  cfg.EpayReturnURL,
		WebsiteURL: cfg.EpayWebsiteURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})

	appCore, err := app.New(app.Config{
		Entitlements: gormStore,
		Payments:     gormStore,
		Books:        gormStore,
		Users:        gormStore,
		Catalog:      bookCatalog,
		Gateway:      gateway,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	var sessions store.SessionStore
	if cfg.RedisAddr != "" {
		sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
	} else {
		sessions = store.NewJWTSessionStore(cfg.SessionSecret, sessionTTL)
	}

	var limiter server.PaymentLimiter
	if cfg.PaymentRateLimit > 0 {
		window := time.Duration(cfg.PaymentRateWindowSeconds) * time.Second
		fw, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.PaymentRateLimit, window)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		limiter = fw
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Catalog:        bookCatalog,
		Sessions:       sessions,
		Users:          gormStore,
		PaymentLimiter: limiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		slog.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	slog.Info("novella server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
