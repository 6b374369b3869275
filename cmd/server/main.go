package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptopulse/config"
	"cryptopulse/internal/auth"
	"cryptopulse/internal/database"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/middleware"
	"cryptopulse/internal/repository"
	"cryptopulse/internal/router"
	"cryptopulse/internal/scheduler"
	"cryptopulse/internal/service"
	"cryptopulse/internal/ws"
	"cryptopulse/pkg/coingecko"
	"cryptopulse/pkg/expo"
)

func main() {
	configPath := flag.String("config", os.Getenv("PULSE_CONFIG"), "path to a YAML config file")
	issueToken := flag.Uint("issue-token", 0, "print an access token for this user id and exit (development)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if *issueToken != 0 {
		tok, err := auth.GenerateAccessToken(&cfg.JWT, *issueToken, "")
		if err != nil {
			log.Fatal().Err(err).Msg("issue token")
		}
		fmt.Println(tok)
		return
	}

	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if cfg.Database.SeedCoins {
		if err := database.SeedCoins(db); err != nil {
			log.Fatal().Err(err).Msg("seed coins")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coins := repository.NewCoinRepository(db)
	var feed service.PriceFeed
	if cfg.Prices.RefreshEnabled {
		feed = coingecko.NewClient(cfg.Prices.CoinGeckoURL, cfg.Prices.CoinGeckoAPIKey)
	}
	prices := service.NewPriceService(coins, feed, cfg.Prices.MaxAge, log).
		WithStatus(repository.NewSettingRepository(db))

	var fcm service.FCMSender
	fcmSvc, err := service.NewFCMService(ctx, cfg.Push.FirebaseServiceAccountPath)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("FCM push disabled: failed to init (check service account file)")
	case fcmSvc != nil:
		fcm = fcmSvc
		log.Info().Msg("FCM push enabled")
	default:
		log.Info().Msg("FCM push disabled: set PULSE_PUSH_FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}
	push := service.NewPushService(
		repository.NewPushTokenRepository(db),
		expo.NewClient(cfg.Push.ExpoURL, cfg.Push.ExpoAccessToken),
		fcm,
		cfg.Push.RatePerSec,
		log,
	)

	rules := service.NewRuleService(repository.NewRuleRepository(db), coins, log)
	hub := ws.NewHub(log)
	dispatcher := scheduler.NewDispatcher(rules, prices, push, hub, cfg.Dispatcher, log)
	svc := router.Services{
		DB:         db,
		Rules:      rules,
		Logs:       service.NewDeliveryLogService(repository.NewDeliveryLogRepository(db)),
		Prices:     prices,
		Push:       push,
		Hub:        hub,
		Dispatcher: dispatcher,

		Accounts:  service.NewAccountService(&cfg.JWT, repository.NewUserRepository(db), log),
		Favorites: service.NewFavoriteService(repository.NewFavoriteRepository(db), coins),
	}

	scanner := scheduler.NewScanner(rules, dispatcher, cfg.Scheduler, log)
	if feed != nil {
		scanner.WithPriceRefresh(prices, cfg.Prices.RefreshInterval)
	}
	if cfg.Scheduler.Enabled {
		// Detached from ctx so in-flight dispatches can finish during shutdown.
		if err := scanner.Start(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("scheduler")
		}
	} else {
		log.Warn().Msg("scheduler disabled; rules will not fire")
	}

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	go sweepLimiter(ctx, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(cfg, svc, limiter, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dispatcher.PushTimeout+10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	scanner.Stop(shutdownCtx)
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

func sweepLimiter(ctx context.Context, l *middleware.IPRateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.Sweep(now)
		}
	}
}
