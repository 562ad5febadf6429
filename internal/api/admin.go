package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/credential"
	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/upstream"
)

// registerAdminRoutes mounts every /internal endpoint, all guarded by
// internalAdminAuth at the group level in RegisterRoutes.
func registerAdminRoutes(g *echo.Group, d Deps) {
	g.POST("/apps", createAppHandler(d))
	g.POST("/apps/:id/api-key", issueOrRotateKeyHandler(d))
	g.POST("/apps/:id/api-key/revoke", revokeKeyHandler(d))
	g.GET("/apps/:id/api-key/status", keyStatusHandler(d))
	g.GET("/apps/:id/api-key/audit", auditHandler(d))
	g.POST("/apps/:id/users/map", upsertUserMappingHandler(d))
	g.POST("/apps/:id/users/map/batch", upsertUserMappingBatchHandler(d))
	g.POST("/apps/:id/webhook", registerWebhookHandler(d))
}

type createAppRequest struct {
	Name string `json:"name"`
}

func createAppHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createAppRequest
		if err := c.Bind(&req); err != nil || req.Name == "" {
			return c.JSON(http.StatusBadRequest, errResp("name is required"))
		}

		id, err := uuid.NewV7()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errResp("failed to generate app id"))
		}
		var appID pgtype.UUID
		if err := appID.Scan(id.String()); err != nil {
			return c.JSON(http.StatusInternalServerError, errResp("failed to generate app id"))
		}

		app, err := d.Querier.CreateApp(c.Request().Context(), db.CreateAppParams{ID: appID, Name: req.Name})
		if err != nil {
			d.Logger.Error("create app failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to create app"))
		}

		issued, err := d.Credentials.Issue(c.Request().Context(), app.ID, "created")
		if err != nil {
			d.Logger.Error("initial key issuance failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to issue initial api key"))
		}

		return c.JSON(http.StatusCreated, map[string]interface{}{
			"id":      app.ID.String(),
			"name":    app.Name,
			"api_key": issued.RawKey,
		})
	}
}

func issueOrRotateKeyHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid app id"))
		}

		status, err := d.Credentials.GetStatus(c.Request().Context(), appID)
		if err != nil {
			return appNotFoundOrError(c, err)
		}
		action := "created"
		if status.HasActiveKey {
			action = "rotated"
		}

		issued, err := d.Credentials.Issue(c.Request().Context(), appID, action)
		if err != nil {
			if errors.Is(err, credential.ErrInactiveApp) {
				return c.JSON(http.StatusForbidden, errResp("app is inactive"))
			}
			d.Logger.Error("key issuance failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to issue api key"))
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"api_key": issued.RawKey,
			"hint":    issued.Hint,
			"action":  action,
		})
	}
}

func revokeKeyHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid app id"))
		}
		if err := d.Credentials.Revoke(c.Request().Context(), appID); err != nil {
			return appNotFoundOrError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"revoked": true})
	}
}

func keyStatusHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid app id"))
		}
		status, err := d.Credentials.GetStatus(c.Request().Context(), appID)
		if err != nil {
			return appNotFoundOrError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"has_active_key":  status.HasActiveKey,
			"hint":            status.Hint,
			"last_rotated_at": status.LastRotatedAt.Time,
		})
	}
}

func auditHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid app id"))
		}

		limit, _ := parsePagination(c)

		var beforeCreatedAt pgtype.Timestamptz
		var beforeID pgtype.UUID
		if cursor := c.QueryParam("before_created_at"); cursor != "" {
			if err := beforeCreatedAt.Scan(cursor); err != nil {
				return c.JSON(http.StatusBadRequest, errResp("invalid before_created_at cursor"))
			}
			if err := beforeID.Scan(c.QueryParam("before_id")); err != nil {
				return c.JSON(http.StatusBadRequest, errResp("before_id cursor required alongside before_created_at"))
			}
		}

		entries, err := d.Credentials.ListAudit(c.Request().Context(), appID, beforeCreatedAt, beforeID, limit)
		if err != nil {
			d.Logger.Error("list credential audit entries failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to list audit entries"))
		}

		var nextCursor map[string]string
		if len(entries) == int(limit) {
			last := entries[len(entries)-1]
			nextCursor = map[string]string{
				"before_created_at": last.CreatedAt.Time.Format("2006-01-02T15:04:05.999999999Z07:00"),
				"before_id":         last.ID.String(),
			}
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"data":        entries,
			"next_cursor": nextCursor,
		})
	}
}

type userMappingRequest struct {
	UpstreamUserID string `json:"upstream_user_id"`
	CRMUserID      string `json:"crm_user_id"`
}

func upsertUserMappingHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid app id"))
		}
		var req userMappingRequest
		if err := c.Bind(&req); err != nil || req.UpstreamUserID == "" || req.CRMUserID == "" {
			return c.JSON(http.StatusBadRequest, errResp("upstream_user_id and crm_user_id are required"))
		}

		mapping, err := upsertOneMapping(c, d, appID, req)
		if err != nil {
			d.Logger.Error("upsert user mapping failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to upsert user mapping"))
		}
		return c.JSON(http.StatusOK, mapping)
	}
}

func upsertUserMappingBatchHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid app id"))
		}
		var reqs []userMappingRequest
		if err := c.Bind(&reqs); err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid request body"))
		}

		results := make([]db.UserMapping, 0, len(reqs))
		for _, req := range reqs {
			if req.UpstreamUserID == "" || req.CRMUserID == "" {
				continue
			}
			mapping, err := upsertOneMapping(c, d, appID, req)
			if err != nil {
				d.Logger.Error("batch upsert user mapping failed",
					zap.String("upstream_user_id", req.UpstreamUserID),
					zap.Error(err),
				)
				continue
			}
			results = append(results, mapping)
		}

		return c.JSON(http.StatusOK, map[string]interface{}{"data": results, "count": len(results)})
	}
}

func upsertOneMapping(c echo.Context, d Deps, appID pgtype.UUID, req userMappingRequest) (db.UserMapping, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return db.UserMapping{}, err
	}
	var rowID pgtype.UUID
	if err := rowID.Scan(id.String()); err != nil {
		return db.UserMapping{}, err
	}
	return d.Querier.UpsertUserMapping(c.Request().Context(), db.UpsertUserMappingParams{
		ID:             rowID,
		AppID:          appID,
		UpstreamUserID: req.UpstreamUserID,
		CRMUserID:      req.CRMUserID,
	})
}

type webhookRegistrationRequest struct {
	DeliveryURL        string `json:"delivery_url"`
	SigningSecret      string `json:"signing_secret"`
	SignatureAlgorithm string `json:"signature_algorithm"`
	SignaturePlacement string `json:"signature_placement"`
}

// registerWebhookHandler registers a delivery URL with the upstream
// provider on a tenant's behalf, using the OAuth binding already stored
// for that app, then persists the registration.
func registerWebhookHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid app id"))
		}

		var req webhookRegistrationRequest
		if err := c.Bind(&req); err != nil || req.DeliveryURL == "" || req.SigningSecret == "" {
			return c.JSON(http.StatusBadRequest, errResp("delivery_url and signing_secret are required"))
		}
		if req.SignatureAlgorithm == "" {
			req.SignatureAlgorithm = "hmac-sha256"
		}
		if req.SignaturePlacement == "" {
			req.SignaturePlacement = "header"
		}

		binding, err := d.Querier.GetUpstreamBindingByAppID(c.Request().Context(), appID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return c.JSON(http.StatusConflict, errResp("app has no upstream binding"))
			}
			d.Logger.Error("lookup upstream binding failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("internal error"))
		}

		registered, err := d.Upstream.RegisterWebhook(c.Request().Context(), d.UpstreamBaseURLForEnv(binding.Environment), upstream.WebhookRegistrationRequest{
			AccessToken:        binding.AccessToken,
			DeliveryURL:        req.DeliveryURL,
			SigningSecret:      req.SigningSecret,
			SignatureAlgorithm: req.SignatureAlgorithm,
		})
		if err != nil {
			d.Logger.Error("upstream webhook registration failed", zap.Error(err))
			return c.JSON(http.StatusBadGateway, errResp("failed to register webhook with upstream provider"))
		}

		id, err := uuid.NewV7()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errResp("failed to generate webhook registration id"))
		}
		var rowID pgtype.UUID
		if err := rowID.Scan(id.String()); err != nil {
			return c.JSON(http.StatusInternalServerError, errResp("failed to generate webhook registration id"))
		}

		reg, err := d.Querier.UpsertWebhookRegistration(c.Request().Context(), db.UpsertWebhookRegistrationParams{
			ID:                 rowID,
			AppID:              appID,
			UpstreamWebhookID:  registered.UpstreamWebhookID,
			DeliveryURL:        req.DeliveryURL,
			SigningSecret:      req.SigningSecret,
			SignatureAlgorithm: req.SignatureAlgorithm,
			SignaturePlacement: req.SignaturePlacement,
		})
		if err != nil {
			d.Logger.Error("persist webhook registration failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to persist webhook registration"))
		}

		return c.JSON(http.StatusOK, reg)
	}
}

func appNotFoundOrError(c echo.Context, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errResp("app not found"))
	}
	return c.JSON(http.StatusInternalServerError, errResp("internal error"))
}
