package observability

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/task-manager/internal/config"
	apperrors "github.com/spec-kit/task-manager/pkg/util"
)

func TestNewLogger_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := newLogger(config.LoggerConfig{Level: "warn", Service: "task-manager-api"}, []string{path})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("k", "v"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "v", entry["k"])
	assert.Equal(t, "task-manager-api", entry["service"])
}

func TestNewLogger_UnknownLevel(t *testing.T) {
	logger, err := newLogger(config.LoggerConfig{Level: "loud"}, []string{filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/tasks/:id", "GET", 200, 2*time.Millisecond)
	m.RecordRequest("/api/tasks/:id", "GET", 200, 4*time.Millisecond)
	m.RecordError("/api/tasks/:id", "GET", "NOT_FOUND")

	snap := m.Snapshot()
	stats := snap.Requests["GET|/api/tasks/:id|200"]
	assert.EqualValues(t, 2, stats.Count)
	assert.InDelta(t, 3.0, stats.AvgLatencyMs, 0.001)
	assert.EqualValues(t, 1, snap.Errors["GET|/api/tasks/:id|NOT_FOUND"])

	var nilMetrics *Metrics
	nilMetrics.RecordRequest("/", "GET", 200, 0)
	assert.Empty(t, nilMetrics.Snapshot().Requests)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	metrics := NewMetrics()

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/ok/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/missing", func(c *fiber.Ctx) error { return apperrors.NewNotFound("thing", nil) })

	req, _ := http.NewRequest(http.MethodGet, "/ok/7", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get(HeaderRequestID))

	req, _ = http.NewRequest(http.MethodGet, "/missing", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	assert.EqualValues(t, 200, entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, 404, entries[1].ContextMap()["status"])

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.Requests["GET|/ok/:id|200"].Count)
	assert.EqualValues(t, 1, snap.Requests["GET|/missing|404"].Count)
}
