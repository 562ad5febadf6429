// Package api mounts every HTTP surface described in the external
// interfaces: signed webhook ingestion, internal admin endpoints guarded
// by a shared bearer secret, tenant-scoped REST reads, health/metrics, and
// the fanout websocket upgrade. Adapted from audit-service's
// handler.RegisterRoutes — the same group-per-concern layout and
// errResp/parsePagination helpers, generalized from a single read-only
// group to the broker's mixed read/write surface, and from
// iam-service's api_keys_handler.go for the one-shot key issuance
// response shape.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/credential"
	"github.com/arc-self/dialpad-broker/internal/fanout"
	"github.com/arc-self/dialpad-broker/internal/ingest"
	"github.com/arc-self/dialpad-broker/internal/platform/tenantctx"
	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/upstream"
)

// errNoResolvedTenant indicates tenantAPIKeyAuth did not run (or failed
// open) before a handler that requires a resolved tenant id.
var errNoResolvedTenant = errors.New("api: no resolved tenant on request context")

const (
	defaultLimit = 50
	maxLimit     = 500

	webhookSignatureHeaderDefault = "x-dialpad-signature"
	tenantAPIKeyHeader            = "x-app-api-key"
	eventTypeHeader               = "x-dialpad-event-type"
	upstreamEventIDHeader         = "x-dialpad-event-id"
)

// Deps bundles everything RegisterRoutes needs to wire every endpoint.
// SQLX is a second connection over the same database used only for the ad
// hoc filtered call listing (see reads.go); every other query goes through
// Querier.
type Deps struct {
	Querier             db.Querier
	SQLX                *sqlx.DB
	Ingestor            *ingest.Ingestor
	Credentials         *credential.Manager
	Fanout              *fanout.Registry
	Logger              *zap.Logger
	InternalAdminSecret string
	WebhookSignatureHdr string

	// Upstream registers webhooks with the provider on a tenant's behalf
	// (see registerWebhookHandler in admin.go).
	Upstream *upstream.Client
	// UpstreamBaseURLForEnv resolves an upstream_bindings.environment
	// label ("sandbox"/"production") to the provider host to call.
	UpstreamBaseURLForEnv func(environment string) string

	// DispatcherStaleAfter is how long the oldest pending raw event may
	// sit unprocessed before /health reports the dispatcher component as
	// stalled rather than ok.
	DispatcherStaleAfter time.Duration
}

// RegisterRoutes mounts every HTTP endpoint onto e.
func RegisterRoutes(e *echo.Echo, d Deps) {
	sigHeader := d.WebhookSignatureHdr
	if sigHeader == "" {
		sigHeader = webhookSignatureHeaderDefault
	}

	e.GET("/health", handleHealth(d))
	e.GET("/metrics", handleMetrics(d))

	e.POST("/webhooks/:provider", handleWebhook(d, sigHeader))

	internal := e.Group("/internal", internalAdminAuth(d.InternalAdminSecret))
	registerAdminRoutes(internal, d)

	apiGroup := e.Group("/api", tenantAPIKeyAuth(d.Credentials))
	registerReadRoutes(apiGroup, d)

	e.GET("/ws", handleWebsocket(d))
}

// handleHealth reports store and dispatcher liveness separately rather
// than a bare 200: the store component degrades on a failed queue-stats
// read, and the dispatcher component degrades once the oldest pending
// raw event has sat unprocessed longer than DispatcherStaleAfter.
func handleHealth(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		components := map[string]string{}
		overall := "ok"

		stats, err := d.Querier.GetQueueStats(c.Request().Context())
		if err != nil {
			components["store"] = "unreachable"
			components["dispatcher"] = "unknown"
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":     "degraded",
				"components": components,
			})
		}
		components["store"] = "ok"

		components["dispatcher"] = "ok"
		if stats.OldestPendingAt.Valid && d.DispatcherStaleAfter > 0 &&
			time.Since(stats.OldestPendingAt.Time) > d.DispatcherStaleAfter {
			components["dispatcher"] = "stalled"
			overall = "degraded"
		}

		status := http.StatusOK
		if overall != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]interface{}{
			"status":     overall,
			"components": components,
		})
	}
}

// handleMetrics reports the Dispatcher's pending queue depth and lag
// behind the oldest undelivered raw event, plus the number of open
// fanout websocket connections.
func handleMetrics(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := d.Querier.GetQueueStats(c.Request().Context())
		if err != nil {
			d.Logger.Error("metrics: failed to read queue stats", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to collect metrics"))
		}

		var dispatcherLagSeconds float64
		if stats.OldestPendingAt.Valid {
			dispatcherLagSeconds = time.Since(stats.OldestPendingAt.Time).Seconds()
		}

		fanoutConnections := 0
		if d.Fanout != nil {
			fanoutConnections = d.Fanout.ConnectionCount()
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"queue_depth":            stats.PendingCount,
			"dispatcher_lag_seconds": dispatcherLagSeconds,
			"fanout_connections":     fanoutConnections,
		})
	}
}

func errResp(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// parsePagination reads limit/offset query parameters with the same
// defaults and cap as audit-service's handler.
func parsePagination(c echo.Context) (int32, int32) {
	limit := int32(defaultLimit)
	offset := int32(0)

	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = int32(n)
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}

func parseUUIDParam(c echo.Context, name string) (pgtype.UUID, error) {
	var u pgtype.UUID
	err := u.Scan(c.Param(name))
	return u, err
}

// resolvedAppID reads the tenant id tenantAPIKeyAuth stashed on the
// request context after verifying the presented API key.
func resolvedAppID(c echo.Context) (pgtype.UUID, error) {
	raw, ok := tenantctx.AppID(c.Request().Context())
	if !ok {
		return pgtype.UUID{}, errNoResolvedTenant
	}
	var u pgtype.UUID
	if err := u.Scan(raw); err != nil {
		return pgtype.UUID{}, err
	}
	return u, nil
}
