package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Run поднимает REST API, ops-сервер метрик и gRPC health, фоновые воркеры
// и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	lifecycleMetrics := metrics.NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
	workerMetrics := metrics.NewWorkerMetricsWithRegisterer(prometheus.DefaultRegisterer)
	httpMetrics := metrics.NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)

	catalogSvc := newCatalog(cfg, logger)
	payments, err := buildPaymentRegistry(cfg, nil, logger.WithField("component", "payments"))
	if err != nil {
		return err
	}

	controller, err := lifecycle.NewController(lifecycle.Dependencies{
		Orders:   deps.repo,
		Timeline: deps.timelineRepo,
		Outbox:   deps.outboxRepo,
		Catalog:  catalogSvc,
		Carts:    deps.cartRepo,
		Payments: payments,
		Metrics:  lifecycleMetrics,
	}, lifecycle.Config{
		Currency:   cfg.Currency,
		FeeRateBps: cfg.FeeRateBps,
	}, logger.WithField("component", "lifecycle"))
	if err != nil {
		return err
	}
	cartSvc := cart.NewService(deps.cartRepo, catalogSvc, cfg.Currency, logger.WithField("component", "cart"))

	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Lifecycle:      controller,
		Cart:           cartSvc,
		Verifier:       verifier,
		Idempotency:    deps.idempotencyRepo,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Metrics:        httpMetrics,
		Logger:         logger.WithField("component", "httpapi"),
	})
	if err != nil {
		return err
	}

	// Kafka необязательна: без брокера события outbox пишутся в лог.
	kafkaProducer, _ := initKafkaProducer(cfg, logger)
	defer closeKafka(kafkaProducer, logger)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		cancelWorkers()
		workers.Wait()
	}()

	publisher, dlqPublisher := outboxPublishers(cfg, kafkaProducer, logger)
	outboxWorker := outbox.NewWorker(deps.outboxRepo, publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(workerMetrics),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		outboxWorker.Run(workerCtx)
	}()

	if deps.idempotencyCleanup {
		cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
			idempotency.WithMetrics(workerMetrics),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			cleanupWorker.Run(workerCtx)
		}()
	}

	consumer, err := startCallbackConsumer(workerCtx, cfg, controller, kafkaProducer, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to start payment callback consumer, continuing without it")
	}
	defer stopConsumer(consumer, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcServer, grpcHealth := newGRPCServer(logger)

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http api: %w", err)
	}
	apiSrv := &http.Server{Handler: router, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", apiLis.Addr().String()).Info("http api listening")
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()

	if strings.TrimSpace(cfg.GRPCAddr) != "" {
		grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			shutdownHTTP(apiSrv, logger)
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			logger.WithField("addr", grpcLis.Addr().String()).Info("grpc health listening")
			if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
		runErr = err
	}

	grpcHealth.Shutdown()
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, shutdownTimeout(cfg), logger)
	return runErr
}

func newCatalog(cfg Config, logger *log.Entry) domain.Catalog {
	if strings.TrimSpace(cfg.CatalogURL) == "" {
		logger.Info("catalog service is not configured, using built-in products")
		return catalog.NewStatic(catalog.SeedProducts()...)
	}
	return catalog.NewHTTPClient(cfg.CatalogURL, cfg.CatalogTimeout, logger.WithField("component", "catalog"))
}

// newVerifier возвращает nil без секрета: тогда все запросы анонимны.
func newVerifier(cfg Config, logger *log.Entry) (*auth.Verifier, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Warn("jwt secret is not set, bearer tokens are rejected")
		return nil, nil
	}
	var opts []auth.Option
	if cfg.JWTIssuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
	}
	return auth.NewVerifier(cfg.JWTSecret, opts...)
}

// newGRPCServer создаёт gRPC сервер только со стандартным health и reflection.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

func stopGRPC(srv *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("grpc graceful stop timed out, forcing stop")
		srv.Stop()
	}
}

// startMetricsServer запускает ops-сервер: /metrics, /healthz, /readyz и /livez.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.WithField("addr", addr).Info("ops server listening: /metrics /healthz /readyz /livez")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func shutdownTimeout(cfg Config) time.Duration {
	if cfg.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return cfg.ShutdownTimeout
}
