package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/lunalash/studio/libs/auth"
	"github.com/lunalash/studio/libs/config"
	"github.com/lunalash/studio/libs/httpx"
	otelx "github.com/lunalash/studio/libs/otel"
	"github.com/lunalash/studio/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type routeConfig struct {
	BookingURL      *url.URL
	NotificationURL *url.URL
	JWTSecret       string
	Login           http.Handler
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	hash, err := adminPasswordHash(config.String("ADMIN_PASSWORD_HASH", ""), config.String("ADMIN_PASSWORD", ""))
	if err != nil {
		panic(err)
	}
	if hash == nil {
		logger.Warn("ADMIN_PASSWORD_HASH not set; admin login disabled")
	}

	var checks []runtime.ReadyCheck
	var rateStore httpx.RateStore
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		rateStore = httpx.NewRedisRateStore(rdb, config.String("RATE_LIMIT_PREFIX", "rl"))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, Optional: true})
		logger.Info("rate limiting enabled (redis)")
	} else {
		rateStore = httpx.NewMemoryRateStore()
		logger.Info("rate limiting enabled (in-memory)")
	}
	rateLimitMW := httpx.WithRateLimit(httpx.RateLimitOptions{
		Rules:    rateRules(),
		Store:    rateStore,
		Logger:   logger,
		FailOpen: config.Bool("RATE_LIMIT_FAIL_OPEN", true),
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, routeConfig{
		BookingURL:      mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		NotificationURL: mustParseURL(config.String("NOTIFICATION_URL", "http://notification-service:8085")),
		JWTSecret:       jwtSecret,
		Login: &loginHandler{
			username:     config.String("ADMIN_USERNAME", "admin"),
			passwordHash: hash,
			issuer:       auth.NewIssuer(jwtSecret, config.String("JWT_ISSUER", "studio-gateway"), config.Duration("ADMIN_TOKEN_TTL", 12*time.Hour)),
			logger:       logger,
		},
	}, logger)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", nil),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-Id", "Idempotency-Key"}),
			ExposedHeaders:   []string{"X-Request-Id", "Idempotent-Replayed"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}

// rateRules: Stripe webhooks are exempt, login and booking writes get
// tighter budgets than browsing.
func rateRules() []httpx.RateRule {
	return []httpx.RateRule{
		{Name: "webhook", Limit: 0, Match: httpx.MatchPrefix(http.MethodPost, "/api/v1/webhooks/")},
		{Name: "login", Limit: config.Int("RATE_LIMIT_LOGIN_PER_MINUTE", 10), Window: time.Minute, Match: httpx.MatchPrefix(http.MethodPost, "/api/v1/admin/login")},
		{Name: "book", Limit: config.Int("RATE_LIMIT_BOOKING_PER_MINUTE", 20), Window: time.Minute, Match: func(r *http.Request) bool {
			return r.Method == http.MethodPost && (strings.HasPrefix(r.URL.Path, "/api/v1/appointments") ||
				strings.HasPrefix(r.URL.Path, "/api/v1/payment-intent") ||
				strings.HasPrefix(r.URL.Path, "/api/v1/contact"))
		}},
		{Name: "default", Limit: config.Int("RATE_LIMIT_PER_MINUTE", 120), Window: time.Minute},
	}
}

func registerRoutes(mux *http.ServeMux, cfg routeConfig, logger *slog.Logger) {
	bookingProxy := newProxy(cfg.BookingURL, logger)
	notificationProxy := newProxy(cfg.NotificationURL, logger)
	admin := auth.Admin(cfg.JWTSecret)

	mux.Handle("POST /api/v1/admin/login", cfg.Login)
	registerProxy(mux, "/api/v1/admin-push-subscription", admin(notificationProxy))
	registerProxy(mux, "/api/v1/admin/push", admin(notificationProxy))
	registerProxy(mux, "/api/v1/admin", admin(bookingProxy))
	// Everything else is public or enforces admin tokens itself; Stripe webhooks are signature-checked upstream.
	registerProxy(mux, "/api/v1", bookingProxy)
}

func newProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream error", "upstream", target.Host, "path", r.URL.Path, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
