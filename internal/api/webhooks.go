package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/ingest"
)

// handleWebhook implements the inbound webhook contract: 200 on
// successful persistence or confirmed duplicate, 401 on bad signature,
// 500 on persistence failure. The raw body is read exactly once and
// passed unparsed into the Ingestor so signature verification always
// sees the original bytes.
func handleWebhook(d Deps, signatureHeader string) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errResp("failed to read request body"))
		}

		eventType := c.Request().Header.Get(eventTypeHeader)
		if eventType == "" {
			eventType = extractEventType(body)
		}

		result, err := d.Ingestor.Ingest(
			c.Request().Context(),
			body,
			c.Request().Header.Get(signatureHeader),
			c.Request().Header.Get(tenantAPIKeyHeader),
			eventType,
			extractUpstreamEventID(body, c.Request().Header.Get(upstreamEventIDHeader)),
		)
		if err != nil {
			if errors.Is(err, ingest.ErrBadSignature) {
				return c.JSON(http.StatusUnauthorized, errResp("signature mismatch"))
			}
			d.Logger.Error("webhook ingestion failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to persist event"))
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"received":  true,
			"duplicate": result.Duplicate,
		})
	}
}

// extractEventType pulls the event type out of the decoded body when the
// caller didn't supply it via header; several aliases exist in the wild
// because different event families use different field names.
func extractEventType(body []byte) string {
	var probe struct {
		EventType string `json:"event_type"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if probe.EventType != "" {
		return probe.EventType
	}
	return probe.Type
}

// extractUpstreamEventID prefers the header when present, falling back to
// a well-known body field so idempotent dedup still works for providers
// that don't send a dedicated header.
func extractUpstreamEventID(body []byte, header string) string {
	if header != "" {
		return header
	}
	var probe struct {
		ID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.ID
}
