package main

import (
	"context"
	"net/http"
	"time"

	"github.com/lunalash/studio/libs/auth"
	"github.com/lunalash/studio/libs/config"
	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/libs/kafkax"
	otelx "github.com/lunalash/studio/libs/otel"
	"github.com/lunalash/studio/libs/runtime"
	"github.com/lunalash/studio/services/booking-service/internal/booking"
	"github.com/lunalash/studio/services/booking-service/internal/catalog"
	"github.com/lunalash/studio/services/booking-service/internal/contact"
	"github.com/lunalash/studio/services/booking-service/internal/handlers"
	"github.com/lunalash/studio/services/booking-service/internal/outbox"
	"github.com/lunalash/studio/services/booking-service/internal/payments"
	"github.com/lunalash/studio/services/booking-service/internal/pending"
	"github.com/lunalash/studio/services/booking-service/internal/policy"
	"github.com/lunalash/studio/services/booking-service/internal/reconcile"
	"github.com/lunalash/studio/services/booking-service/internal/slots"
	"github.com/lunalash/studio/services/booking-service/internal/storage"
	"github.com/lunalash/studio/services/booking-service/internal/validation"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v79"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelCfg := otelx.ConfigFromEnv(service)
	otelCfg.Logger = logger
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	studio, err := policy.FromEnv()
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: storage.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", "")), Optional: true},
	}

	reconcileCfg := reconcile.Config{
		Schedule:        config.String("RECONCILE_SCHEDULE", "@every 5m"),
		MinAge:          config.Duration("RECONCILE_MIN_AGE", 15*time.Minute),
		BatchSize:       config.Int("RECONCILE_BATCH_SIZE", 50),
		AdvisoryLockKey: config.Int64("RECONCILE_LOCK_KEY", 7310001),
		PurgeAfter:      config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
	}
	// Pending deposits outlive PendingTTL so the reconciler can cancel their intents.
	pendingRetention, err := reconcile.PendingRetention(studio.PendingTTL, reconcileCfg.MinAge, reconcileCfg.Schedule)
	if err != nil {
		panic(err)
	}

	var pendingStore booking.PendingStore
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		pendingStore = pending.NewRedisStore(rdb, config.String("PENDING_KEY_PREFIX", "studio:pending"), pendingRetention)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: pending.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_URL not set; pending deposits are kept in memory and lost on restart")
		pendingStore = pending.NewMemoryStore(pendingRetention)
	}

	stripeHTTP := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 30 * time.Second}
	gateway := payments.NewStripeGateway(config.String("STRIPE_SECRET_KEY", ""), &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{HTTPClient: stripeHTTP}),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{HTTPClient: stripeHTTP}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{HTTPClient: stripeHTTP}),
	})
	if gateway == nil {
		logger.Warn("STRIPE_SECRET_KEY not set; deposit bookings will fail")
	}

	validate := validation.New()
	outboxRepo := outbox.NewRepository(pool)
	catalogSvc := catalog.NewService(storage.NewServiceRepository(pool), studio, validate)
	slotSvc := slots.NewService(storage.NewSlotRepository(pool), studio, validate, logger)
	bookings := booking.NewService(booking.Deps{
		Catalog:  catalogSvc,
		Ledger:   storage.NewAppointmentRepository(pool),
		Slots:    slotSvc,
		Pending:  pendingStore,
		Payments: gateway,
		Notifier: outbox.NewNotifier(outboxRepo),
		Policy:   studio,
		Validate: validate,
		Logger:   logger,
	})

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	reconciler := reconcile.New(pool, bookings, outboxRepo, logger, reconcileCfg)
	go func() {
		if err := reconciler.Run(ctx); err != nil {
			logger.Error("deposit reconciler not started", "err", err)
		}
	}()

	api := handlers.New(handlers.Deps{
		Bookings:    bookings,
		Slots:       slotSvc,
		Catalog:     catalogSvc,
		Contacts:    contact.NewService(storage.NewContactRepository(pool), validate),
		Idempotency: storage.NewIdempotencyRepository(pool),
		Events:      storage.NewPaymentEventRepository(pool),
		Logger:      logger,
		Config: handlers.Config{
			WebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
			WebhookTolerance: config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
			SessionCookie:    config.String("SESSION_COOKIE_NAME", "studio_session"),
			SecureCookies:    config.Bool("SECURE_COOKIES", true),
		},
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	api.Register(mux, auth.Admin(jwtSecret))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 30*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
