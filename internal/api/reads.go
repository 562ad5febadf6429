package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/store/db"
)

// registerReadRoutes mounts every /api/* endpoint, all guarded by
// tenantAPIKeyAuth at the group level in RegisterRoutes and scoped to the
// resolved tenant id at the SQL level in every handler below.
func registerReadRoutes(g *echo.Group, d Deps) {
	g.GET("/calls", listCallsHandler(d))
	g.GET("/calls/active", listActiveCallsHandler(d))
	g.GET("/calls/:id", getCallHandler(d))
	g.GET("/messages", listMessagesHandler(d))
}

// listCallsHandler backs GET /api/calls?status=&direction=&limit=&offset=.
// Unlike the fixed-shape queries elsewhere in the store package, the
// filter combination here is caller-chosen, so it goes through a second
// connection (sqlx, ad hoc query building) rather than adding a
// combinatorial family of Querier methods for every filter permutation.
func listCallsHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := resolvedAppID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errResp("unauthorized"))
		}
		limit, offset := parsePagination(c)

		if d.SQLX == nil {
			calls, err := d.Querier.ListCallsByApp(c.Request().Context(), db.ListCallsByAppParams{AppID: appID, Limit: limit, Offset: offset})
			if err != nil {
				d.Logger.Error("list calls failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, errResp("failed to list calls"))
			}
			return c.JSON(http.StatusOK, map[string]interface{}{"data": calls, "limit": limit, "offset": offset, "count": len(calls)})
		}

		calls, err := listCallsFiltered(c.Request().Context(), d.SQLX, filteredCallsQuery{
			AppID:     appID.String(),
			Status:    c.QueryParam("status"),
			Direction: c.QueryParam("direction"),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			d.Logger.Error("filtered call list failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to list calls"))
		}

		return c.JSON(http.StatusOK, map[string]interface{}{"data": calls, "limit": limit, "offset": offset, "count": len(calls)})
	}
}

func listActiveCallsHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := resolvedAppID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errResp("unauthorized"))
		}
		calls, err := d.Querier.ListActiveCallsByApp(c.Request().Context(), appID)
		if err != nil {
			d.Logger.Error("list active calls failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to list active calls"))
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"data": calls, "count": len(calls)})
	}
}

// getCallHandler backs GET /api/calls/:id. GetCallByID scopes by app_id
// as well as row id, so a call belonging to another tenant resolves to
// ErrNotFound — the same 404 a truly missing call would return, not a
// 403 that would leak its existence.
func getCallHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := resolvedAppID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errResp("unauthorized"))
		}
		callID, err := parseUUIDParam(c, "id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errResp("invalid call id"))
		}

		call, err := d.Querier.GetCallByID(c.Request().Context(), db.GetCallByIDParams{AppID: appID, ID: callID})
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return c.JSON(http.StatusNotFound, errResp("call not found"))
			}
			d.Logger.Error("get call failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to load call"))
		}
		return c.JSON(http.StatusOK, call)
	}
}

func listMessagesHandler(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		appID, err := resolvedAppID(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errResp("unauthorized"))
		}
		limit, offset := parsePagination(c)
		messages, err := d.Querier.ListMessagesByApp(c.Request().Context(), db.ListMessagesByAppParams{AppID: appID, Limit: limit, Offset: offset})
		if err != nil {
			d.Logger.Error("list messages failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to list messages"))
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"data": messages, "limit": limit, "offset": offset, "count": len(messages)})
	}
}

type filteredCallsQuery struct {
	AppID     string
	Status    string
	Direction string
	Limit     int32
	Offset    int32
}

type filteredCall struct {
	ID              string          `json:"id"`
	UpstreamCallID  string          `json:"upstream_call_id"`
	Direction       *string         `json:"direction,omitempty"`
	Status          string          `json:"status"`
	FromNumber      *string         `json:"from_number,omitempty"`
	ToNumber        *string         `json:"to_number,omitempty"`
	DurationSeconds *int32          `json:"duration_seconds,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// listCallsFiltered builds the WHERE clause from whichever filters the
// caller supplied, against a parameterized, injection-safe clause list
// rather than string concatenation of values.
func listCallsFiltered(ctx context.Context, sqlxDB *sqlx.DB, f filteredCallsQuery) ([]filteredCall, error) {
	clauses := []string{"app_id = $1"}
	args := []interface{}{f.AppID}

	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Direction != "" {
		args = append(args, f.Direction)
		clauses = append(clauses, fmt.Sprintf("direction = $%d", len(args)))
	}

	args = append(args, f.Limit)
	limitPos := len(args)
	args = append(args, f.Offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`
		SELECT id, upstream_call_id, direction, status, from_number, to_number, duration_seconds, payload
		FROM calls
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, strings.Join(clauses, " AND "), limitPos, offsetPos)

	rows, err := sqlxDB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []filteredCall
	for rows.Next() {
		var fc filteredCall
		if err := rows.Scan(&fc.ID, &fc.UpstreamCallID, &fc.Direction, &fc.Status, &fc.FromNumber, &fc.ToNumber, &fc.DurationSeconds, &fc.Payload); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}
