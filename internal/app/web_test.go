package app

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pollen_dashboard/internal/chart"
	"github.com/relabs-tech/pollen_dashboard/internal/dashboard"
	"github.com/relabs-tech/pollen_dashboard/internal/series"
	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

var (
	rmcLine = nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	ggaLine = nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
)

func newTestDashboard() *dashboard.Dashboard {
	return dashboard.New(chart.DefaultRegistry(series.DefaultCapacity),
		dashboard.WithClock(func() time.Time { return testNow }),
		dashboard.WithLocation(time.UTC))
}

func stationMessage(t *testing.T) telemetry.Message {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"power": map[string]float64{"pollen": 12},
		"dht22": []map[string]float64{{"t": 21.5, "rh": 40}},
		"gps":   rmcLine + "\n" + ggaLine,
	})
	require.NoError(t, err)
	msg, err := telemetry.Decode(payload)
	require.NoError(t, err)
	return msg
}

func newTestRouter(t *testing.T) (*gin.Engine, *dashboard.Dashboard, *Hub) {
	t.Helper()
	dash := newTestDashboard()
	hub := NewHub()
	dash.OnChange(hub.Listener(dash))
	return newRouter(dash, hub, ""), dash, hub
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestWeb_State(t *testing.T) {
	r, dash, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, w.Code)
	var empty stateView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	assert.Equal(t, "--", empty.Text.Position.Latitude)

	dash.Receive(stationMessage(t))

	w = do(r, http.MethodGet, "/api/state")
	require.Equal(t, http.StatusOK, w.Code)
	var got stateView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "48.117300", got.Text.Position.Latitude)
	assert.Equal(t, "11.516667", got.Text.Position.Longitude)
	assert.Equal(t, "41.5", got.Text.Position.SpeedKmh)
	assert.Equal(t, "21.5", got.Text.BoxTemperature)
	assert.Equal(t, "12:00:00", got.Text.Timestamp)
	require.NotNil(t, got.State.Marker)
	assert.InDelta(t, 48.1173, got.State.Marker.Lat, 1e-4)
}

func TestWeb_Map(t *testing.T) {
	r, dash, _ := newTestRouter(t)
	dash.Receive(stationMessage(t))

	w := do(r, http.MethodGet, "/api/map")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"FeatureCollection"`)
	assert.Contains(t, w.Body.String(), `"marker"`)
}

func TestWeb_Charts(t *testing.T) {
	r, dash, _ := newTestRouter(t)
	dash.Receive(stationMessage(t))

	w := do(r, http.MethodGet, "/api/charts")
	require.Equal(t, http.StatusOK, w.Code)
	var views []chart.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	assert.Len(t, views, 2)

	w = do(r, http.MethodGet, "/api/charts/pollen")
	require.Equal(t, http.StatusOK, w.Code)
	var view chart.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, chart.Pollen, view.Key)
	assert.True(t, view.Visible)
	assert.Equal(t, []string{"12:00:00"}, view.Data.Labels)
}

func TestWeb_ExportCSV(t *testing.T) {
	r, dash, _ := newTestRouter(t)
	dash.Receive(stationMessage(t))
	dash.Receive(telemetry.Message{Power: map[string]float64{"Vbat": 3.7}})

	w := do(r, http.MethodGet, "/api/charts/pollen/export.csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="pollen_data.csv"`)
	assert.Equal(t, "Time,Pollen Count\n12:00:00,12.00\n12:00:00,\n", w.Body.String())

	w = do(r, http.MethodGet, "/api/charts/sensor/export.csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="sensor_data.csv"`)
	assert.True(t, strings.HasSuffix(w.Body.String(), "12:00:00,21.5,40\n"))
}

func TestWeb_ChartPNG(t *testing.T) {
	r, dash, _ := newTestRouter(t)
	dash.Receive(stationMessage(t))

	w := do(r, http.MethodGet, "/api/charts/sensor/chart.png?width=200&height=100")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	for _, q := range []string{"width=abc", "height=0", "width=99999", "width=10&height=10"} {
		w = do(r, http.MethodGet, "/api/charts/sensor/chart.png?"+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestWeb_Toggle(t *testing.T) {
	r, dash, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/charts/sensor/toggle")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key": "sensor", "visible": false}`, w.Body.String())
	assert.False(t, dash.Charts().MustGet(chart.Sensor).Visible())

	w = do(r, http.MethodPost, "/api/charts/sensor/toggle")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key": "sensor", "visible": true}`, w.Body.String())
}

func TestWeb_UnknownChart(t *testing.T) {
	r, _, _ := newTestRouter(t)

	for _, req := range []struct{ method, target string }{
		{http.MethodGet, "/api/charts/wind"},
		{http.MethodGet, "/api/charts/wind/export.csv"},
		{http.MethodGet, "/api/charts/wind/chart.png"},
		{http.MethodPost, "/api/charts/wind/toggle"},
	} {
		w := do(r, req.method, req.target)
		assert.Equal(t, http.StatusNotFound, w.Code, req.target)
	}
}

func TestWeb_WebSocketPushesChanges(t *testing.T) {
	r, dash, hub := newTestRouter(t)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	dash.Receive(telemetry.Message{Power: map[string]float64{"pollen": 5}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first wsUpdate
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "state", first.Kind)
	require.NotNil(t, first.State)
	assert.Equal(t, map[string]float64{"pollen": 5}, first.State.State.Power)

	var second wsUpdate
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "chart", second.Kind)
	require.NotNil(t, second.Chart)
	assert.Equal(t, chart.Pollen, second.Chart.Key)
	assert.Equal(t, 1, len(second.Chart.Data.Labels))

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}
