package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loja-api/internal/domain/auth"
	"github.com/xenking/loja-api/internal/domain/cart"
	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/domain/notification"
	"github.com/xenking/loja-api/internal/domain/order"
	"github.com/xenking/loja-api/internal/domain/review"
	"github.com/xenking/loja-api/internal/events"
	"github.com/xenking/loja-api/internal/handler"
	"github.com/xenking/loja-api/internal/storage/postgres"
	redisstore "github.com/xenking/loja-api/internal/storage/redis"
	"github.com/xenking/loja-api/pkg/health"
	"github.com/xenking/loja-api/pkg/httpmiddleware"
	"github.com/xenking/loja-api/pkg/metrics"
)

const serviceName = "loja-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	shippingFee, err := cfg.ShippingFee()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	// Redis cart store.
	redisClient, err := redisstore.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = redisClient.Close() }()
	cartStore := redisstore.NewCartStore(redisClient, cfg.Redis.CartTTL)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(cartStore), health.WithThresholds(2, 1))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	metricsSvc := metrics.New("loja")

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	reviewRepo := postgres.NewReviewRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	// Domain services.
	notifications := notification.NewService(notificationRepo)
	ledger := coupon.NewLedger(couponRepo)
	carts := cart.NewService(cartStore, productRepo, ledger, notifications)
	orders := order.NewService(
		postgres.NewUnitOfWork(pool),
		orderRepo,
		productRepo,
		ledger,
		carts,
		notifications,
		order.Config{ShippingFee: shippingFee, RejectInvalidCoupon: cfg.Checkout.RejectInvalidCoupon},
		order.WithRecorder(metricsSvc),
		order.WithTracerProvider(m.TracerProvider()),
	)
	reviews := review.NewService(reviewRepo, productRepo, orderRepo)

	// Outbox relay.
	var relayWG sync.WaitGroup
	if len(cfg.Events.Brokers) > 0 {
		publisher := events.NewPublisher(
			events.NewKafkaWriter(cfg.Events.Brokers, cfg.Events.Topic),
			cfg.Events.BreakerFailures,
			cfg.Events.BreakerCooldown,
			lg.Named("publisher"),
		)
		relay := events.NewRelay(outboxRepo, publisher, cfg.Events.PollInterval, cfg.Events.BatchSize,
			events.WithPublishObserver(metricsSvc),
		)
		relayWG.Add(1)
		go func() {
			defer relayWG.Done()
			defer func() {
				if err := publisher.Close(); err != nil {
					lg.Warn("Close publisher", zap.Error(err))
				}
			}()
			if err := relay.Run(zctx.Base(ctx, lg.Named("relay"))); err != nil {
				lg.Error("Outbox relay stopped", zap.Error(err))
			}
		}()
		lg.Info("Outbox relay started", zap.Strings("brokers", cfg.Events.Brokers), zap.String("topic", cfg.Events.Topic))
	} else {
		lg.Warn("No Kafka brokers configured, order events stay in the outbox")
	}

	// HTTP handlers.
	h := handler.NewHandler(handler.Config{ImageBaseURL: cfg.ImageBaseURL}, handler.Deps{
		Carts:         carts,
		Orders:        orders,
		Coupons:       ledger,
		CouponAdmin:   coupon.NewAdmin(couponRepo),
		Reviews:       reviews,
		Notifications: notifications,
		NotifyAdmin:   notifications,
		Stock:         productRepo,
		Tokens:        auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	})

	// Router: health and metrics endpoints + API routes on one server.
	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Method(http.MethodGet, "/metrics", metricsSvc.Handler())
	root.Mount("/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider(), metricsSvc),
			httpmiddleware.LogRequests(),
		),
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		relayWG.Wait()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
