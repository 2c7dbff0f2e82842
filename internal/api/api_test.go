package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/rain-sensor/internal/hap"
	"github.com/thatsimonsguy/rain-sensor/internal/metrics"
	"github.com/thatsimonsguy/rain-sensor/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStatus struct {
	snap model.Snapshot
}

func (f fakeStatus) Snapshot() model.Snapshot { return f.snap }

type testAccessory struct {
	registry *hap.Registry
	leak     hap.LeakState
	on       bool
	onReads  int
}

func newTestAccessory() *testAccessory {
	a := &testAccessory{registry: hap.NewRegistry(), leak: hap.LeakDetected}
	a.registry.AddService(hap.Service{
		Type:            hap.ServiceAccessoryInformation,
		Name:            "Garden Rain",
		Characteristics: []hap.Characteristic{hap.CharManufacturer},
		Static:          map[hap.Characteristic]interface{}{hap.CharManufacturer: "Netatmo"},
	})
	a.registry.AddService(hap.Service{
		Type:            hap.ServiceLeakSensor,
		Name:            "Garden Rain",
		Characteristics: []hap.Characteristic{hap.CharLeakDetected},
	})
	a.registry.AddService(hap.Service{
		Type:            hap.ServiceSwitch,
		Name:            "Garden Rain",
		Characteristics: []hap.Characteristic{hap.CharOn},
	})
	a.registry.OnGet(hap.ServiceLeakSensor, hap.CharLeakDetected, func() interface{} { return a.leak })
	a.registry.OnGet(hap.ServiceSwitch, hap.CharOn, func() interface{} {
		a.onReads++
		return a.on
	})
	a.registry.OnSet(hap.ServiceSwitch, hap.CharOn, func(v interface{}) error {
		b, ok := v.(bool)
		if !ok {
			return hap.ErrInvalidValue
		}
		a.on = b
		a.registry.UpdateCharacteristic(hap.ServiceSwitch, hap.CharOn, b)
		return nil
	})
	return a
}

func newTestServer(a *testAccessory) *Server {
	status := fakeStatus{snap: model.Snapshot{
		Name:         "Garden Rain",
		DeviceType:   model.DeviceLeak,
		Identity:     model.Identity{StationID: "st", ModuleID: "rain"},
		RainDetected: true,
		PollerArmed:  true,
	}}
	return NewServer(a.registry, status, nil)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(newTestAccessory())

	w := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Accessory.RainDetected)
	assert.Equal(t, "rain", resp.Accessory.Identity.ModuleID)
}

func TestGetAccessory(t *testing.T) {
	a := newTestAccessory()
	s := newTestServer(a)

	w := do(t, s, http.MethodGet, "/api/v1/accessory", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp AccessoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Garden Rain", resp.Name)
	require.Len(t, resp.Services, 3)
	assert.Equal(t, "Netatmo", resp.Services[0].Characteristics[0].Value)
	assert.Equal(t, float64(1), resp.Services[1].Characteristics[0].Value)
	assert.True(t, resp.Services[2].Characteristics[0].Writable)
	assert.Equal(t, 0, a.onReads, "listing does not read writable characteristics through handlers")
}

func TestGetCharacteristic(t *testing.T) {
	a := newTestAccessory()
	s := newTestServer(a)

	w := do(t, s, http.MethodGet, "/api/v1/characteristics/LeakDetected", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp CharacteristicResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, hap.ServiceLeakSensor, resp.Service)
	assert.Equal(t, float64(1), resp.Value)
	assert.False(t, resp.Writable)
}

func TestGetCharacteristic_Unknown(t *testing.T) {
	s := newTestServer(newTestAccessory())

	w := do(t, s, http.MethodGet, "/api/v1/characteristics/Brightness", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetCharacteristic(t *testing.T) {
	a := newTestAccessory()
	s := newTestServer(a)

	w := do(t, s, http.MethodPut, "/api/v1/characteristics/On", CharacteristicRequest{Value: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, a.on)

	var resp CharacteristicResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp.Value)
}

func TestSetCharacteristic_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body interface{}
		code int
	}{
		{"unknown", "/api/v1/characteristics/Brightness", CharacteristicRequest{Value: true}, http.StatusNotFound},
		{"read-only", "/api/v1/characteristics/LeakDetected", CharacteristicRequest{Value: 1}, http.StatusMethodNotAllowed},
		{"static read-only", "/api/v1/characteristics/Manufacturer", CharacteristicRequest{Value: "x"}, http.StatusMethodNotAllowed},
		{"missing value", "/api/v1/characteristics/On", map[string]interface{}{}, http.StatusBadRequest},
		{"invalid value", "/api/v1/characteristics/On", CharacteristicRequest{Value: "yes"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(newTestAccessory())
			w := do(t, s, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestMetrics(t *testing.T) {
	a := newTestAccessory()

	w := do(t, newTestServer(a), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no gatherer, no route")

	p := metrics.NewPrometheus("rain")
	p.RainDetected(true)
	s := NewServer(a.registry, fakeStatus{}, p.Gatherer())

	w = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rain_rain_detected 1")
}

func TestCORS(t *testing.T) {
	s := newTestServer(newTestAccessory())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/characteristics/On", nil)
	req.Header.Set("Origin", "http://homebridge.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
