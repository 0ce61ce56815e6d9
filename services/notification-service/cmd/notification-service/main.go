package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lunalash/studio/libs/auth"
	"github.com/lunalash/studio/libs/config"
	"github.com/lunalash/studio/libs/db"
	"github.com/lunalash/studio/libs/httpx"
	"github.com/lunalash/studio/libs/kafkax"
	otelx "github.com/lunalash/studio/libs/otel"
	"github.com/lunalash/studio/libs/runtime"
	"github.com/lunalash/studio/services/notification-service/internal/consumer"
	"github.com/lunalash/studio/services/notification-service/internal/dispatch"
	"github.com/lunalash/studio/services/notification-service/internal/email"
	"github.com/lunalash/studio/services/notification-service/internal/handlers"
	"github.com/lunalash/studio/services/notification-service/internal/inbox"
	"github.com/lunalash/studio/services/notification-service/internal/push"
	"github.com/lunalash/studio/services/notification-service/internal/sms"
	"github.com/lunalash/studio/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	vapid := push.VAPID{
		PublicKey:  config.String("VAPID_PUBLIC_KEY", ""),
		PrivateKey: config.String("VAPID_PRIVATE_KEY", ""),
		Subject:    config.String("VAPID_SUBJECT", "mailto:admin@studio.local"),
	}
	if vapid.PublicKey == "" || vapid.PrivateKey == "" {
		vapid, err = push.GenerateVAPID(vapid.Subject)
		if err != nil {
			panic(err)
		}
		logger.Warn("VAPID keys not set; generated an ephemeral pair, admins must re-subscribe after restart")
	}

	subscriptions := storage.NewSubscriptionRepository(pool)
	pushHTTP := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 10 * time.Second}
	sender := push.NewSender(vapid, config.Duration("PUSH_TTL", 12*time.Hour), pushHTTP)

	emailSender := email.NewSMTPSender(email.Config{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		From:     config.String("SMTP_FROM", "no-reply@studio.local"),
		FromName: config.String("SMTP_FROM_NAME", ""),
	})

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "twilio":
		sid, err := config.RequiredString("TWILIO_ACCOUNT_SID")
		if err != nil {
			panic(err)
		}
		token, err := config.RequiredString("TWILIO_AUTH_TOKEN")
		if err != nil {
			panic(err)
		}
		smsSender = sms.NewTwilioSender(sid, token, config.String("TWILIO_FROM_NUMBER", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	dispatcher := dispatch.New(dispatch.Deps{
		Push:     push.NewFanout(subscriptions, sender, logger),
		Email:    emailSender,
		SMS:      smsSender,
		Recorder: storage.NewNotificationRepository(pool),
		Logger:   logger,
		Config: dispatch.Config{
			StudioName:     config.String("STUDIO_NAME", "Studio"),
			AdminURL:       config.String("ADMIN_URL", "/admin"),
			CurrencySymbol: config.String("CURRENCY_SYMBOL", "R$"),
			ClientMessages: config.Bool("CLIENT_MESSAGES_ENABLED", true),
		},
	})

	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers:     brokers,
		GroupID:     config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics:      dispatch.Topics(),
		MaxAttempts: config.Int("CONSUMER_MAX_ATTEMPTS", 3),
		Backoff:     config.Duration("CONSUMER_BACKOFF", time.Second),
	}, dispatcher.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
		runtime.ReadyCheck{Name: "kafka_topics", Check: kafkax.ReadyCheck(brokers, dispatch.Topics()...), Optional: true},
	)
	handlers.New(subscriptions, sender.PublicKey(), logger).Register(mux, auth.Admin(jwtSecret))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
