package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubMaster answers like the master actor for a single device "boiler".
func stubMaster(ctx actor.Context) {
	power := 1200.0
	boiler := domain.DeviceStatus{
		DeviceRecord: domain.DeviceRecord{Name: "boiler", PowerConsumption: &power},
		State:        domain.DeviceStateOn,
	}
	notFound := func(name string) domain.ActorResponseMixIn {
		return domain.ResponseError(fmt.Errorf("%w: %q", domain.ErrNotFound, name))
	}
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: true})
	case domain.GetDevicesRequest:
		ctx.Respond(domain.GetDevicesResponse{Devices: []domain.DeviceStatus{boiler}})
	case domain.GetDeviceRequest:
		if msg.Name != "boiler" {
			ctx.Respond(domain.GetDeviceResponse{ActorResponseMixIn: notFound(msg.Name)})
			return
		}
		ctx.Respond(domain.GetDeviceResponse{Device: &boiler})
	case domain.GetCurrentSampleRequest:
		ctx.Respond(domain.GetCurrentSampleResponse{ActorResponseMixIn: domain.ResponseError(domain.ErrNoSample)})
	case domain.AddDeviceRequest:
		if msg.Record.Name == "boiler" {
			ctx.Respond(domain.AddDeviceResponse{ActorResponseMixIn: domain.ResponseError(domain.ErrDuplicateName)})
			return
		}
		if msg.Record.PowerConsumption == nil {
			ctx.Respond(domain.AddDeviceResponse{ActorResponseMixIn: domain.ResponseError(domain.ErrInvalidDevice)})
			return
		}
		ctx.Respond(domain.AddDeviceResponse{Device: &domain.DeviceStatus{DeviceRecord: msg.Record, State: domain.DeviceStateOff}})
	case domain.RemoveDeviceRequest:
		if msg.Name != "boiler" {
			ctx.Respond(domain.RemoveDeviceResponse{ActorResponseMixIn: notFound(msg.Name)})
			return
		}
		ctx.Respond(domain.RemoveDeviceResponse{})
	case domain.SwitchDeviceRequest:
		ctx.Respond(domain.SwitchDeviceResponse{Name: msg.Name, Action: "switched off - manual", State: domain.DeviceStateOff})
	case domain.SaveDevicesRequest:
		ctx.Respond(domain.SaveDevicesResponse{Count: 1})
	case domain.GetEventsRequest:
		events := make([]domain.DeviceEvent, msg.Limit)
		ctx.Respond(domain.GetEventsResponse{Events: events})
	case domain.GetDailyStatsRequest:
		switch {
		case msg.Day.IsZero():
			first := time.Date(2024, 6, 2, 6, 0, 0, 0, time.Local)
			last := first.Add(3 * time.Hour)
			ctx.Respond(domain.GetDailyStatsResponse{Stats: &domain.DailyStats{
				Day: time.Date(2024, 6, 2, 0, 0, 0, 0, time.Local), PVEnergy: 4.2,
				ConsumptionEnergy: 2, SelfConsumptionEnergy: 1.5, Samples: 180,
				FirstUpdate: &first, LastUpdate: &last,
			}})
		case msg.Day.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)):
			ctx.Respond(domain.GetDailyStatsResponse{Stats: &domain.DailyStats{Day: msg.Day, PVEnergy: 10}})
		default:
			ctx.Respond(domain.GetDailyStatsResponse{ActorResponseMixIn: notFound(msg.Day.Format(time.DateOnly))})
		}
	}
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(stubMaster))
	s := &Server{rootContext: as.Root, masterActor: pid, logger: zap.NewNop()}
	return s.RegisterRoutes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {

	h := newTestHandler(t)
	rec := do(t, h, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestDeviceRoutes(t *testing.T) {

	h := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var devices []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "boiler", devices[0]["name"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/devices/boiler", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/devices/kettle", "").Code)

	rec = do(t, h, http.MethodPost, "/api/devices", `{"name":"fan","power_consumption":300,"priority":3,"switch_on_threshold":400,"switch_off_threshold":100}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"fan"`)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/devices", `{"name":"boiler","power_consumption":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/devices", `{"name":"fan"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/devices", `{"name":`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/devices/boiler", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/devices/kettle", "").Code)

	rec = do(t, h, http.MethodPost, "/api/devices/boiler/off", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"off"`)

	rec = do(t, h, http.MethodPost, "/api/devices/save", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"saved":1}`, rec.Body.String())
}

func TestSampleAndStatusRoutes(t *testing.T) {

	h := newTestHandler(t)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/current", "").Code)

	rec := do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.Devices)
	assert.Equal(t, 1, status.ActiveDevices)
	assert.Equal(t, 1200.0, status.ControlledPower)
	assert.Nil(t, status.Sample)
}

func TestEventsRoute(t *testing.T) {

	h := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []domain.DeviceEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, defaultEventLimit)

	rec = do(t, h, http.MethodGet, "/api/events?limit=3", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 3)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?limit=0", "").Code)
}

func TestActorTimeout(t *testing.T) {

	as := actor.NewActorSystem()
	defer as.Shutdown()
	silent := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {}))
	s := &Server{rootContext: as.Root, masterActor: silent, logger: zap.NewNop()}

	start := time.Now()
	_, err := ask[domain.GetDevicesResponse](s, domain.GetDevicesRequest{})
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), requestTimeout)
}

func TestStatsRoute(t *testing.T) {

	h := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "2024-06-02", stats["date"])
	assert.Equal(t, 4.2, stats["pv_energy"])
	assert.Equal(t, 75.0, stats["self_sufficiency_rate"])
	assert.Equal(t, 3.0, stats["runtime_hours"])
	assert.Nil(t, stats["battery_soc_min"])

	rec = do(t, h, http.MethodGet, "/api/stats?date=2024-06-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "2024-06-01", stats["date"])
	assert.Equal(t, 10.0, stats["pv_energy"])

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/stats?date=2024-05-01", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/stats?date=yesterday", "").Code)
}
