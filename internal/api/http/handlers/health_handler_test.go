package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func readiness(t *testing.T, deps map[string]Pinger) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get("/ready", NewHealthHandler("sla-service", "test", deps).Ready)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestReady_AllDependenciesUp(t *testing.T) {
	status, body := readiness(t, map[string]Pinger{
		"store": pingFunc(func(context.Context) error { return nil }),
		"redis": nil,
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Len(t, checks, 1)
	assert.Equal(t, "ok", checks["store"].(map[string]any)["status"])
}

func TestReady_DependencyDown(t *testing.T) {
	status, body := readiness(t, map[string]Pinger{
		"store": pingFunc(func(context.Context) error { return nil }),
		"redis": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unavailable", body["status"])
	redis := body["checks"].(map[string]any)["redis"].(map[string]any)
	assert.Equal(t, "down", redis["status"])
	assert.Equal(t, "connection refused", redis["error"])
}
