// Package main boots the broker process: HTTP ingestion and reads, the
// raw event dispatcher, the per-call/voicemail/message handlers, the
// tenant fanout registry, and the token-refresh/voicemail-GC scheduler,
// all sharing one database pool. Adapted from audit-service's
// cmd/api/main.go — the same structured-logger / OTel-tracer / Vault
// secret / OTel-instrumented pool / signal-driven graceful shutdown
// shape, generalized from a consumer-only service to one that also
// serves HTTP and runs a cron scheduler.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver sqlx.Connect below dials through
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/api"
	"github.com/arc-self/dialpad-broker/internal/callflow"
	"github.com/arc-self/dialpad-broker/internal/config"
	"github.com/arc-self/dialpad-broker/internal/credential"
	"github.com/arc-self/dialpad-broker/internal/dispatcher"
	"github.com/arc-self/dialpad-broker/internal/fanout"
	"github.com/arc-self/dialpad-broker/internal/ingest"
	"github.com/arc-self/dialpad-broker/internal/message"
	"github.com/arc-self/dialpad-broker/internal/platform/eventbus"
	"github.com/arc-self/dialpad-broker/internal/platform/secrets"
	"github.com/arc-self/dialpad-broker/internal/scheduler"
	"github.com/arc-self/dialpad-broker/internal/store"
	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/telemetry"
	"github.com/arc-self/dialpad-broker/internal/tenant"
	"github.com/arc-self/dialpad-broker/internal/upstream"
	"github.com/arc-self/dialpad-broker/internal/voicemail"
)

func main() {
	// ── Structured Logger ──────────────────────────────────────────────────
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// ── Configuration ──────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// ── Vault Secret Overlay ─────────────────────────────────────────────────
	// When VAULT_ADDR is set, the database DSN, NATS URL, and credential
	// pepper are re-resolved from Vault KV v2 rather than trusted from the
	// plain environment config.Load already parsed.
	if os.Getenv("VAULT_ADDR") != "" {
		loaded, err := secrets.Load("DATABASE_URL", "NATS_URL", "CREDENTIAL_PEPPER")
		if err != nil {
			logger.Fatal("failed to load secrets from Vault", zap.Error(err))
		}
		cfg.DatabaseURL = loaded["DATABASE_URL"]
		cfg.NATSURL = loaded["NATS_URL"]
		cfg.CredentialPepper = loaded["CREDENTIAL_PEPPER"]
		logger.Info("secrets loaded from Vault")
	}

	// ── OpenTelemetry Tracer ───────────────────────────────────────────────
	if cfg.OTelEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), "dialpad-broker", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
			logger.Info("OTel tracer initialized", zap.String("endpoint", cfg.OTelEndpoint))
		}

		mp, err := telemetry.InitMeterProvider(context.Background(), "dialpad-broker", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
		}
	}

	// ── Database Connection Pool (OTel-instrumented) ───────────────────────
	pool, err := store.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database (OTel-instrumented)")

	querier := db.New(pool)

	// sqlxDB shares the same DSN on a second, lighter connection used only
	// by the ad hoc filtered call listing (internal/api/reads.go); every
	// other query path goes through the pgx pool above.
	sqlxDB, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Warn("sqlx connection unavailable, filtered call listing will fall back to the fixed query", zap.Error(err))
		sqlxDB = nil
	} else {
		defer sqlxDB.Close()
	}

	// ── NATS JetStream (domain-event echo) ─────────────────────────────────
	eventbusClient, err := eventbus.NewClient(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer eventbusClient.Close()

	if err := eventbusClient.ProvisionStream(); err != nil {
		logger.Fatal("NATS stream provisioning failed", zap.Error(err))
	}

	// ── Domain Collaborators ────────────────────────────────────────────────
	credManager := credential.NewManager(pool, querier, cfg.CredentialPepper)
	resolver := tenant.NewResolver(querier, credManager)
	ingestor := ingest.New(querier, resolver, cfg.WebhookSigningSecret, logger)
	fanoutRegistry := fanout.NewRegistry(querier, credManager, logger)

	callHandlers := callflow.NewHandlers(fanoutRegistry, logger)
	voicemailHandlers := voicemail.NewHandlers(fanoutRegistry, logger)
	messageHandlers := message.NewHandlers(logger)

	// ── Dispatcher ──────────────────────────────────────────────────────────
	disp := dispatcher.New(pool, int32(cfg.DispatcherBatchSize), cfg.DispatcherInterval, logger, eventbusClient)
	disp.On("call.ring", callHandlers.Ring)
	disp.On("call.started", callHandlers.Started)
	disp.On("call.ended", callHandlers.Ended)
	disp.On("call.recording_completed", callHandlers.RecordingCompleted)
	disp.On("voicemail.delivered", voicemailHandlers.Handle)
	disp.On("message.sent", messageHandlers.Handle)
	disp.On("message.received", messageHandlers.Handle)
	disp.On("sms.sent", messageHandlers.Handle)
	disp.On("sms.received", messageHandlers.Handle)
	disp.On("mms.sent", messageHandlers.Handle)
	disp.On("mms.received", messageHandlers.Handle)

	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	for i := 0; i < cfg.DispatcherWorkers; i++ {
		go disp.Run(dispatcherCtx)
	}
	logger.Info("dispatcher started", zap.Int("workers", cfg.DispatcherWorkers))

	// ── Scheduler (token refresh + voicemail orphan GC) ────────────────────
	upstreamClient := upstream.NewClient(logger)
	baseURLForEnv := func(environment string) string {
		if environment == "production" {
			return cfg.UpstreamProductionBaseURL
		}
		return cfg.UpstreamSandboxBaseURL
	}
	credsForEnv := func(environment string) upstream.Credentials {
		if environment == "production" {
			return upstream.Credentials{
				TokenURL:     cfg.UpstreamProductionBaseURL + "/oauth2/token",
				ClientID:     cfg.OAuthProductionClientID,
				ClientSecret: cfg.OAuthProductionClientSecret,
			}
		}
		return upstream.Credentials{
			TokenURL:     cfg.UpstreamSandboxBaseURL + "/oauth2/token",
			ClientID:     cfg.OAuthSandboxClientID,
			ClientSecret: cfg.OAuthSandboxClientSecret,
		}
	}
	sched := scheduler.New(querier, upstreamClient, credsForEnv, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()
	logger.Info("scheduler started")

	// ── HTTP Server ────────────────────────────────────────────────────────
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("dialpad-broker"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("HTTP request",
				zap.String("URI", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	api.RegisterRoutes(e, api.Deps{
		Querier:               querier,
		SQLX:                  sqlxDB,
		Ingestor:              ingestor,
		Credentials:           credManager,
		Fanout:                fanoutRegistry,
		Logger:                logger,
		InternalAdminSecret:   cfg.InternalAdminSecret,
		WebhookSignatureHdr:   cfg.WebhookSignatureHeader,
		Upstream:              upstreamClient,
		UpstreamBaseURLForEnv: baseURLForEnv,
		DispatcherStaleAfter:  10 * cfg.DispatcherInterval,
	})

	go func() {
		logger.Info("dialpad-broker HTTP server listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	// ── Graceful Shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("initiating graceful shutdown")

	dispatcherCancel()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}
	logger.Info("dialpad-broker shut down cleanly")
}
