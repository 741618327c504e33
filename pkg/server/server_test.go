package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/solarplanner/solarplanner/pkg/calendar"
	"github.com/solarplanner/solarplanner/pkg/device"
	"github.com/solarplanner/solarplanner/pkg/recommend"
	"github.com/solarplanner/solarplanner/pkg/solar"
	"github.com/solarplanner/solarplanner/pkg/storage"
	"github.com/solarplanner/solarplanner/pkg/storage/storagemock"
	"github.com/solarplanner/solarplanner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testRegistry() *device.Registry {
	return device.NewRegistry(map[types.DeviceID]device.Config{
		"washing_machine": {
			OnThresholdW:  80,
			OffThresholdW: 20,
			MinDuration:   time.Minute,
			MinEnergyKWH:  0.1,
			MaxSilence:    30 * time.Minute,
			Hysteresis:    3 * time.Minute,
		},
		"fridge": {
			OnThresholdW:  40,
			OffThresholdW: 10,
			Permanent:     true,
		},
	})
}

func newTestServer(db storage.Database) *Server {
	return &Server{
		devices:    testRegistry(),
		solar:      solar.NewMap(nil, solar.NewSimulated(4.5, 13, 12)),
		calendar:   calendar.NewContext(calendar.NewStaticSource()),
		storage:    db,
		models:     recommend.NewStore(),
		homeID:     types.HomeIDDefault,
		bypassAuth: true,
		serverName: "test",
	}
}

// expectSettings wires the settings load plus the migration write that
// follows an empty settings doc.
func expectSettings(db *storagemock.MockDatabase) {
	db.On("GetSettings", mock.Anything, types.HomeIDDefault).Return(types.Settings{}, 0, nil)
	db.On("SetSettings", mock.Anything, types.HomeIDDefault, mock.Anything, types.CurrentSettingsVersion).Return(nil)
}

// weeklyCycles returns n cycles, one per week, starting Monday 10:00.
func weeklyCycles(n int) []types.Cycle {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var cycles []types.Cycle
	for i := 0; i < n; i++ {
		start := base.AddDate(0, 0, 7*i)
		cycles = append(cycles, types.Cycle{
			Device:      "washing_machine",
			Start:       start,
			End:         start.Add(50 * time.Minute),
			DurationMin: 50,
			EnergyKWH:   0.9,
		})
	}
	return cycles
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&storagemock.MockDatabase{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "test", rec.Header().Get("Server"))
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(&storagemock.MockDatabase{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSolarEndpoint(t *testing.T) {
	db := &storagemock.MockDatabase{}
	expectSettings(db)
	s := newTestServer(db)

	req := httptest.NewRequest(http.MethodGet, "/api/solar?days=2", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res SolarRes
	require.NoError(t, decodeJSON(rec, &res))
	assert.Len(t, res.Points, 48)
	assert.Greater(t, res.TotalKWH, 0.0)
}

func TestSolarEndpointBadDays(t *testing.T) {
	db := &storagemock.MockDatabase{}
	expectSettings(db)
	s := newTestServer(db)

	req := httptest.NewRequest(http.MethodGet, "/api/solar?days=99", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSolarEndpointUnavailable(t *testing.T) {
	db := &storagemock.MockDatabase{}
	expectSettings(db)
	s := newTestServer(db)
	s.solar = solar.NewMap(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/solar", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "forecast_unavailable", errReason(t, rec))
}

func TestCommandsEndpoint(t *testing.T) {
	db := &storagemock.MockDatabase{}
	s := newTestServer(db)

	cmds := []types.CommandRecord{{
		Timestamp: time.Now().Add(-time.Hour),
		Command:   "advise",
		Devices:   []types.DeviceID{"washing_machine"},
	}}
	db.On("GetCommandHistory", mock.Anything, types.HomeIDDefault, mock.Anything, mock.Anything).Return(cmds, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/commands", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res []types.CommandRecord
	require.NoError(t, decodeJSON(rec, &res))
	require.Len(t, res, 1)
	assert.Equal(t, "advise", res[0].Command)
}

func TestDevicesEndpoint(t *testing.T) {
	s := newTestServer(&storagemock.MockDatabase{})

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res DevicesRes
	require.NoError(t, decodeJSON(rec, &res))
	assert.Equal(t, []types.DeviceID{"washing_machine"}, res.Controllable)
	assert.Equal(t, []types.DeviceID{"fridge"}, res.Permanent)
}

func TestRequireAdmin(t *testing.T) {
	db := &storagemock.MockDatabase{}
	s := newTestServer(db)
	s.bypassAuth = false
	s.adminEmails = []string{"admin@example.com"}

	req := httptest.NewRequest(http.MethodPost, "/api/retrain", nil)
	rec := httptest.NewRecorder()
	s.setupHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
