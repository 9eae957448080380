package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"istsi/internal/audit"
	"istsi/internal/integration/cache"
	integrationHandler "istsi/internal/integration/handler"
	"istsi/internal/integration/rates"
	integrationService "istsi/internal/integration/service"
	integrationStore "istsi/internal/integration/store"
	kycHandler "istsi/internal/kyc/handler"
	kycService "istsi/internal/kyc/service"
	kycStore "istsi/internal/kyc/store"
	"istsi/internal/platform/config"
	"istsi/internal/platform/httpserver"
	"istsi/internal/platform/jwttoken"
	"istsi/internal/platform/logger"
	"istsi/internal/platform/metrics"
	platformredis "istsi/internal/platform/redis"
	reserveHandler "istsi/internal/reserve/handler"
	reserveService "istsi/internal/reserve/service"
	reserveStore "istsi/internal/reserve/store"
	tokenHandler "istsi/internal/token/handler"
	tokenService "istsi/internal/token/service"
	tokenStore "istsi/internal/token/store"
	httptransport "istsi/internal/transport/http"
	id "istsi/pkg/domain"
)

// main wires the components together and owns the process lifecycle.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	adminAddr, err := id.ParseAddress(cfg.AdminAddress)
	if err != nil {
		log.Error("invalid admin address", "error", err)
		os.Exit(1)
	}
	routerAddr, err := id.ParseAddress(cfg.RouterAddress)
	if err != nil {
		log.Error("invalid router address", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable stores when Postgres is configured; in-memory otherwise.
	var (
		pool       *pgxpool.Pool
		opStore    integrationService.OperationStore = integrationStore.NewInMemory()
		auditStore audit.Store                       = audit.NewInMemoryStore()
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		opStore = integrationStore.NewPostgres(pool)
		auditStore = audit.NewPostgresStore(pool)
	}

	publisher := audit.NewPublisher(auditStore, audit.WithLogger(log))

	var sinks []audit.Sink
	kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.Error("failed to connect to kafka", "error", err)
		os.Exit(1)
	}
	if kafkaSink != nil {
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	worker := audit.NewWorker(publisher.Inbox(), log, sinks...)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	registry, err := kycService.New(kycStore.NewInMemory(), adminAddr,
		kycService.WithLogger(log),
		kycService.WithAuditPublisher(publisher),
	)
	if err != nil {
		log.Error("failed to build kyc registry", "error", err)
		os.Exit(1)
	}

	reserve, err := reserveService.New(reserveStore.NewInMemory(cfg.MinReserveRatioBPS), cfg.MinConfirmations,
		reserveService.WithLogger(log),
		reserveService.WithAuditPublisher(publisher),
	)
	if err != nil {
		log.Error("failed to build reserve manager", "error", err)
		os.Exit(1)
	}

	ledger, err := tokenService.New(tokenStore.NewInMemory(), routerAddr, adminAddr,
		tokenService.WithLogger(log),
		tokenService.WithComplianceChecker(registry),
	)
	if err != nil {
		log.Error("failed to build token ledger", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	rateProvider := rates.NewFixedProvider()
	routerOpts := []integrationService.Option{
		integrationService.WithLogger(log),
		integrationService.WithAuditPublisher(publisher),
		integrationService.WithMetrics(m),
		integrationService.WithRateProvider(rateProvider),
	}
	if redisClient != nil {
		routerOpts = append(routerOpts, integrationService.WithStatusCache(cache.New(redisClient, 10*time.Minute)))
	}

	router, err := integrationService.New(opStore, registry, reserve, ledger,
		integrationService.Config{
			RouterAddress:        routerAddr,
			AdminAddress:         adminAddr,
			TokenUnitsPerSatoshi: cfg.TokenUnitsPerSatoshi,
		},
		routerOpts...,
	)
	if err != nil {
		log.Error("failed to build integration router", "error", err)
		os.Exit(1)
	}

	if cfg.SecondaryTokenSymbol != "" {
		secondary, err := tokenService.New(tokenStore.NewInMemory(), routerAddr, adminAddr,
			tokenService.WithLogger(log),
			tokenService.WithComplianceChecker(registry),
		)
		if err != nil {
			log.Error("failed to build secondary ledger", "error", err)
			os.Exit(1)
		}
		if err := router.RegisterLedger(cfg.SecondaryTokenSymbol, secondary); err != nil {
			log.Error("failed to register secondary ledger", "error", err)
			os.Exit(1)
		}
		rate, err := decimal.NewFromString(cfg.ExchangeRate)
		if err != nil || !rate.IsPositive() {
			log.Error("invalid exchange rate", "rate", cfg.ExchangeRate)
			os.Exit(1)
		}
		rateProvider.Set("iSTSi", cfg.SecondaryTokenSymbol, rate)
		rateProvider.Set(cfg.SecondaryTokenSymbol, "iSTSi", decimal.NewFromInt(1).Div(rate))
	}

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "istsi-platform")
	validator := jwttoken.NewMiddlewareAdapter(tokens)

	handler := httptransport.NewRouter(
		kycHandler.New(registry, log, m, validator),
		reserveHandler.New(reserve, log, m, validator),
		tokenHandler.New(ledger, "iSTSi", log, m, validator),
		integrationHandler.New(router, log, m, validator),
	)
	srv := httpserver.New(cfg.Addr, handler)

	log.Info("starting istsi custody platform", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
