package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lessonbot/internal/config"
	"lessonbot/internal/database"
	"lessonbot/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*OpsServer, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunPending(context.Background())
	require.NoError(t, err)

	bookings := service.NewBookingService(db, nil, nil, nil, time.UTC, 0, 0, &logger)
	srv := NewOpsServer(config.OpsConfig{Enabled: true, Port: 0}, db, nil, bookings, &logger)
	return srv, db
}

func doRequest(t *testing.T, srv *OpsServer, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "disabled", body["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAvailability(t *testing.T) {
	srv, db := newTestServer(t)
	ctx := context.Background()

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/availability?date=2030-09-10&time=09:00")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["available"])

	// A booking occupies the slot.
	svc := service.NewBookingService(db, nil, nil, nil, time.UTC, 0, 0, srv.logger)
	_, err := svc.Reserve(ctx, 100, "2030-09-10", "09:00", "", "")
	require.NoError(t, err)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/availability?date=2030-09-10&time=09:00")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["available"])
}

func TestAvailabilityValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/availability?date=2030-09-10")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/availability?date=nope&time=09:00")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/availability?date=2030-09-10&time=09:00")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestClosedDates(t *testing.T) {
	srv, db := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, db.CloseDate(ctx, "2026-09-11", "holiday"))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/closed-dates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2026-09-11")
}

func TestRateLimitExemptsProbes(t *testing.T) {
	srv, _ := newTestServer(t)

	// Burst is 20 on /api/ paths; probes never hit the limiter.
	for i := 0; i < 40; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	limited := false
	for i := 0; i < 40; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/closed-dates")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}
