package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/config"
	"github.com/ignatzorin/creator-escrow/internal/db"
	"github.com/ignatzorin/creator-escrow/internal/events"
	"github.com/ignatzorin/creator-escrow/internal/goroutine"
	httpHandlers "github.com/ignatzorin/creator-escrow/internal/http/handlers"
	httpRouter "github.com/ignatzorin/creator-escrow/internal/http/router"
	"github.com/ignatzorin/creator-escrow/internal/jobs"
	"github.com/ignatzorin/creator-escrow/internal/logger"
	"github.com/ignatzorin/creator-escrow/internal/obs"
	"github.com/ignatzorin/creator-escrow/internal/repository"
	"github.com/ignatzorin/creator-escrow/internal/repository/memory"
	"github.com/ignatzorin/creator-escrow/internal/service"
	"github.com/ignatzorin/creator-escrow/internal/storage"
	"github.com/ignatzorin/creator-escrow/internal/ws"
)

const serviceName = "creator-escrow"

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if !cfg.IsProduction() {
		logger.SetTextFormatter()
	}
	log := logger.L()

	if cfg.OTelEnabled {
		shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTelEndpoint, cfg.Env)
		if err != nil {
			log.Fatalf("main: не удалось запустить трассировку: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				log.WithError(err).Warn("main: ошибка остановки трассировки")
			}
		}()
	}

	rules, err := service.RulesFromConfig(cfg.Escrow)
	if err != nil {
		log.Fatalf("main: некорректные правила эскроу: %v", err)
	}

	// Хранилище: PostgreSQL с River или память с таймером.
	var (
		store      repository.Store
		startSweep func(sweeper jobs.Sweeper) func()
	)
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		log.Warn("main: STORAGE_DRIVER=memory, данные не сохраняются между запусками")
		store = memory.New()
		startSweep = func(sweeper jobs.Sweeper) func() {
			goroutine.SafeGoWithContext(ctx, "jobs.ticker", func(ctx context.Context) {
				jobs.RunTicker(ctx, sweeper, cfg.Escrow.SweepInterval, cfg.Escrow.SweepBatch)
			})
			return func() {}
		}
	default:
		dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("main: ошибка подключения к базе: %v", err)
		}
		defer safeClose(dbConn)

		if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
			log.Fatalf("main: ошибка миграций: %v", err)
		}

		pool, err := db.NewPgxPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("main: %v", err)
		}
		defer pool.Close()

		if err := jobs.MigrateRiver(ctx, pool); err != nil {
			log.Fatalf("main: %v", err)
		}

		store = repository.NewPostgresStore(dbConn)
		startSweep = func(sweeper jobs.Sweeper) func() {
			client, err := jobs.NewRiverClient(pool, jobs.NewAutoReleaseWorker(sweeper), cfg.Escrow.SweepInterval, cfg.Escrow.SweepBatch)
			if err != nil {
				log.Fatalf("main: %v", err)
			}
			if err := client.Start(ctx); err != nil {
				log.Fatalf("main: не удалось запустить River: %v", err)
			}
			return func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := client.Stop(stopCtx); err != nil {
					log.WithError(err).Warn("main: ошибка остановки River")
				}
			}
		}
	}

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGoWithContext(ctx, "ws.hub", hub.Run)

	publishers := events.Fanout{events.NewHubPublisher(hub)}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("main: %v", err)
		}
		defer func() {
			if err := amqpPublisher.Close(); err != nil {
				log.WithError(err).Warn("main: ошибка закрытия rabbitmq")
			}
		}()
		publishers = append(publishers, amqpPublisher)
	}

	// Сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, time.Hour)
	policyCache := service.NewCacheService(time.Minute)
	defer policyCache.Close()

	escrow := service.NewEscrow(service.Deps{
		Store:     store,
		Policy:    service.NewAccessPolicy(store.Repos().Policies, policyCache, 5*time.Minute),
		Publisher: publishers,
		Rules:     rules,
	})

	stopSweep := startSweep(escrow.Bookings)
	defer stopSweep()

	artifacts, err := storage.NewArtifactStorage(cfg.ArtifactStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	// HTTP хэндлеры и роутер.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Bookings:   httpHandlers.NewBookingHandler(escrow.Bookings, artifacts, httpRouter.ArtifactsURL),
		Payments:   httpHandlers.NewPaymentHandler(escrow.Payments),
		Disputes:   httpHandlers.NewDisputeHandler(escrow.Disputes),
		Settlement: httpHandlers.NewSettlementHandler(escrow.Settlement),
		Health:     httpHandlers.NewHealthHandler(store),
		Policies:   httpHandlers.NewPolicyHandler(escrow.Policy),
		WS:         httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
	}, tokenManager)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           corsHandler.Handler(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo("http.shutdown", func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	log.WithFields(logrus.Fields{
		"port":    cfg.HTTPPort,
		"storage": cfg.StorageDriver,
		"env":     cfg.Env,
	}).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.L().WithError(err).Warn("main: ошибка закрытия базы")
	}
}
