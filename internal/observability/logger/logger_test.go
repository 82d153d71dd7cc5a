package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/orderdesk/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fieldMap(fields []zap.Field) map[string]string {
	out := map[string]string{}
	for _, f := range fields {
		out[f.Key] = f.String
	}
	return out
}

func TestContextFieldsOmitsUnset(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithJobRun(ctx, "sla_sweep", "77")
	got := fieldMap(ContextFields(ctx))
	assert.Equal(t, map[string]string{
		"request_id": "req-9",
		"job":        "sla_sweep",
		"run_id":     "77",
	}, got)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "chatty"})
	require.Error(t, err)
}

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestGinMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeGlobal(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/ws", func(c *gin.Context) {
		c.Set(ClientIDKey, "client-1")
		c.Status(http.StatusSwitchingProtocols)
	})

	for _, path := range []string{"/health", "/orders/1", "/ws"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Request-Id", "fixed-id")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "fixed-id", w.Header().Get("X-Request-Id"))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "websocket_session", entries[2].Message)
	assert.Equal(t, "client-1", entries[2].ContextMap()["client_id"])
	assert.Equal(t, "fixed-id", entries[2].ContextMap()["request_id"])
}
