package gateway_routers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	internal_session "github.com/rapidaai/voice-gateway/internal/session"
	"github.com/rapidaai/voice-gateway/pkg/connectors"
)

type fakeDatabase struct {
	pingErr error
}

func (f *fakeDatabase) DB(ctx context.Context) *gorm.DB { return nil }
func (f *fakeDatabase) Ping(ctx context.Context) error  { return f.pingErr }
func (f *fakeDatabase) Close() error                    { return nil }

func newHealthEngine(t *testing.T, registry *internal_session.Registry, database connectors.DatabaseConnector) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	HealthCheckRoutes(testConfig(""), engine, newTestLogger(t), database, registry)
	return engine
}

func TestHealthzReportsServiceAndActiveCalls(t *testing.T) {
	cfg := testConfig("")
	registry := internal_session.NewRegistry()
	liveSession(t, cfg, registry, "MZ-health-1")

	engine := newHealthEngine(t, registry, nil)
	w := doRequest(engine, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "voice-gateway", body["service"])
	assert.EqualValues(t, 1, body["activeCalls"])
}

func TestReadinessWithoutDatabaseIsReady(t *testing.T) {
	engine := newHealthEngine(t, internal_session.NewRegistry(), nil)
	w := doRequest(engine, http.MethodGet, "/readiness", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decodeBody(t, w)["status"])
}

func TestReadinessReportsHealthyDatabase(t *testing.T) {
	engine := newHealthEngine(t, internal_session.NewRegistry(), &fakeDatabase{})
	w := doRequest(engine, http.MethodGet, "/readiness", "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessReportsDegradedDatabase(t *testing.T) {
	engine := newHealthEngine(t, internal_session.NewRegistry(), &fakeDatabase{pingErr: errors.New("dial tcp: connection refused")})
	w := doRequest(engine, http.MethodGet, "/readiness", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decodeBody(t, w)["status"])
}
