package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/payhuk02/payhula-sub024/internal/api"
	"github.com/payhuk02/payhula-sub024/internal/auth"
	"github.com/payhuk02/payhula-sub024/internal/config"
	"github.com/payhuk02/payhula-sub024/internal/db"
	"github.com/payhuk02/payhula-sub024/internal/health"
	"github.com/payhuk02/payhula-sub024/internal/logging"
	"github.com/payhuk02/payhula-sub024/internal/metrics"
	"github.com/payhuk02/payhula-sub024/internal/store/postgres"
	"github.com/payhuk02/payhula-sub024/internal/tracing"
	"github.com/payhuk02/payhula-sub024/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	// Initialize structured logging
	logger := logging.New("payhula-webhooks")

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracing(ctx, "payhula-webhooks")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	// DB connect
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()
	store := postgres.New(pool)

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// DLQ producer
	var deadLetters webhook.DeadLetterPublisher
	if cfg.Delivery.PublishDLQ {
		dlqProducer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer for DLQ creation failed")
		}
		defer dlqProducer.Stop()
		deadLetters = webhook.NewNSQDeadLetters(dlqProducer, cfg.NSQ.DLQTopic)
	}

	// Core engine
	dispatcher := webhook.NewDispatcher(webhook.DispatcherConfig{
		Timeout:           cfg.Delivery.Timeout,
		SignatureHeader:   cfg.Delivery.SignatureHeader,
		EventHeader:       cfg.Delivery.EventHeader,
		EventIDHeader:     cfg.Delivery.EventIDHeader,
		UserAgent:         cfg.Delivery.UserAgent,
		ResponseBodyLimit: cfg.Delivery.ResponseBodyLimit,
	})
	policy := webhook.NewPolicy(cfg.Delivery.BackoffBase, cfg.Delivery.BackoffCap)
	policy.DefaultMaxAttempts = cfg.Delivery.DefaultMaxAttempts
	orchestrator := webhook.NewOrchestrator(store, dispatcher, policy, logger, deadLetters)

	// Retry sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := webhook.NewSweeper(store, dispatcher, policy, logger, deadLetters, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)
	go sweeper.Run(sweepCtx)

	// Trigger API auth (optional; internal deployments may run without it)
	var validator *auth.JWTValidator
	if cfg.Auth.JWTSecret != "" {
		validator, err = auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			logger.Plain().WithError(err).Fatal("jwt validator creation failed")
		}
	} else {
		logger.Plain().Warn("JWT_SECRET not set, trigger API runs unauthenticated")
	}

	// HTTP server: trigger API, health, metrics
	mux := http.NewServeMux()
	api.NewServer(orchestrator, store, validator, logger).Register(mux)
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("webhook HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("webhook HTTP server failed")
		}
	}()

	// NSQ consumer for business events
	conf := nsq.NewConfig()
	conf.MaxInFlight = 1000
	consumer, err := nsq.NewConsumer(cfg.NSQ.EventsTopic, cfg.NSQ.EngineChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse() // we manually finish or requeue
		defer func() {
			if !m.HasResponded() {
				logger.Plain().Warn("message had no response, finishing")
				m.Finish()
			}
		}()

		var ev webhook.Event
		if err := json.Unmarshal(m.Body, &ev); err != nil {
			logger.Plain().WithError(err).Error("bad event payload")
			m.Finish() // terminal: don't retry bad payloads
			return nil
		}
		if err := ev.Validate(); err != nil {
			logger.Plain().WithError(err).WithStore(ev.StoreID).Error("undeliverable event")
			m.Finish() // terminal: unknown types never become known
			return nil
		}

		// Extract trace context from NSQ message headers and start span
		ctx := tracing.ExtractTraceFromNSQ(ctx, ev.TraceHeaders)
		ctx, span := tracing.StartSpan(ctx, "engine.event",
			attribute.String("store_id", ev.StoreID),
			attribute.String("event_type", string(ev.Type)),
			attribute.String("event_id", ev.ID),
		)
		defer span.End()

		result, err := orchestrator.Trigger(ctx, ev.StoreID, ev.Type, ev.Data, ev.ID)
		if err != nil {
			// Subscription resolution failed; the fan-out never started, so
			// a requeue cannot double-deliver.
			logger.WithContext(ctx).WithStore(ev.StoreID).WithEvent(ev.ID).WithError(err).Error("trigger failed")
			tracing.SetSpanError(ctx, err)
			m.Requeue(-1)
			return nil
		}

		logger.WithContext(ctx).WithStore(ev.StoreID).WithEvent(ev.ID).WithFields(map[string]any{
			"subscribers": len(result.Results),
			"success":     result.Success,
		}).Info("event fanned out")
		m.Finish()
		return nil
	}))

	// Connecting directly to NSQD forces channel creation, instead of the channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	logger.Plain().Info("webhook delivery service started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down webhook delivery service")
	stopSweeper()
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("webhook delivery service stopped")
}
