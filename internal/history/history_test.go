package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

func newAPI(t *testing.T, devices, history string, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(devices))
	})
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(history))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_DeviceAndHistory(t *testing.T) {
	srv := newAPI(t,
		`[{"power": {"pollen": 4}, "timestamp": 3}, {"power": {"pollen": 9}}]`,
		`[{"timestamp": 2}, {"timestamp": 1}]`,
		http.StatusOK)
	c := NewClient(srv.URL+"/api/", WithTimeout(time.Second))

	device, err := c.Device(context.Background())
	require.NoError(t, err)
	v, ok := device.PowerValue(telemetry.PowerPollen)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	msgs, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(2), *msgs[0].Timestamp)
}

func TestClient_NoDevice(t *testing.T) {
	srv := newAPI(t, `[]`, `[]`, http.StatusOK)
	_, err := NewClient(srv.URL + "/api").Device(context.Background())
	assert.Equal(t, ErrNoDevice, errors.Cause(err))
}

func TestClient_BadStatus(t *testing.T) {
	srv := newAPI(t, `oops`, `oops`, http.StatusBadGateway)
	c := NewClient(srv.URL + "/api")

	_, err := c.Device(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response status: 502")

	_, err = c.History(context.Background())
	assert.Error(t, err)
}

func TestClient_BadJSON(t *testing.T) {
	srv := newAPI(t, `{`, `{"not": "a list"}`, http.StatusOK)
	c := NewClient(srv.URL + "/api")

	_, err := c.Device(context.Background())
	assert.Error(t, err)
	_, err = c.History(context.Background())
	assert.Error(t, err)
}

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "db", "pollen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchive_RecentNewestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, a.Record(ctx, base, []byte(`{"power": {"pollen": 1}}`)))
	require.NoError(t, a.Record(ctx, base.Add(time.Minute), []byte(`{"power": {"pollen": 2}, "timestamp": 42}`)))
	require.NoError(t, a.Record(ctx, base.Add(2*time.Minute), []byte(`not json`)))
	require.NoError(t, a.Record(ctx, base.Add(3*time.Minute), []byte(`{"power": {"pollen": 3}}`)))

	msgs, err := a.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	pollen := func(m telemetry.Message) float64 {
		v, _ := m.PowerValue(telemetry.PowerPollen)
		return v
	}
	assert.Equal(t, 3.0, pollen(msgs[0]))
	assert.Equal(t, 2.0, pollen(msgs[1]))
	assert.Equal(t, 1.0, pollen(msgs[2]))

	// own timestamp wins; otherwise the receive time is used
	assert.Equal(t, int64(42), *msgs[1].Timestamp)
	assert.Equal(t, base.UnixMilli(), *msgs[2].Timestamp)

	msgs, err = a.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 3.0, pollen(msgs[0]))
}

func TestArchive_Prune(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, a.Record(ctx, base, []byte(`{}`)))
	require.NoError(t, a.Record(ctx, base.Add(time.Hour), []byte(`{}`)))

	n, err := a.Prune(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msgs, err := a.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

type stubRemote struct {
	device     telemetry.Message
	deviceErr  error
	history    []telemetry.Message
	historyErr error
}

func (s *stubRemote) Device(context.Context) (telemetry.Message, error) {
	return s.device, s.deviceErr
}

func (s *stubRemote) History(context.Context) ([]telemetry.Message, error) {
	return s.history, s.historyErr
}

type recordingSink struct {
	updates  []telemetry.Message
	replayed [][]telemetry.Message
}

func (r *recordingSink) Update(m telemetry.Message) { r.updates = append(r.updates, m) }

func (r *recordingSink) ReplayHistory(ms []telemetry.Message) { r.replayed = append(r.replayed, ms) }

func ts(v int64) *int64 { return &v }

func TestLoader_RemoteSuccess(t *testing.T) {
	sink := &recordingSink{}
	l := &Loader{
		Remote: &stubRemote{
			device:  telemetry.Message{Timestamp: ts(5)},
			history: []telemetry.Message{{Timestamp: ts(2)}, {Timestamp: ts(1)}},
		},
		Sink: sink,
	}
	l.Load(context.Background())

	require.Len(t, sink.updates, 1)
	assert.Equal(t, int64(5), *sink.updates[0].Timestamp)
	require.Len(t, sink.replayed, 1)
	assert.Len(t, sink.replayed[0], 2)
}

func TestLoader_DeviceFailureStillLoadsHistory(t *testing.T) {
	sink := &recordingSink{}
	l := &Loader{
		Remote: &stubRemote{
			deviceErr: errors.New("boom"),
			history:   []telemetry.Message{{Timestamp: ts(1)}},
		},
		Sink: sink,
	}
	l.Load(context.Background())

	assert.Empty(t, sink.updates)
	require.Len(t, sink.replayed, 1)
}

func TestLoader_HistoryFailureWithoutArchive(t *testing.T) {
	sink := &recordingSink{}
	l := &Loader{
		Remote: &stubRemote{historyErr: errors.New("down")},
		Sink:   sink,
	}
	l.Load(context.Background())

	assert.Len(t, sink.updates, 1)
	assert.Empty(t, sink.replayed)
}

func TestLoader_FallsBackToArchive(t *testing.T) {
	a := openTestArchive(t)
	require.NoError(t, a.Record(context.Background(), time.Now(), []byte(`{"power": {"pollen": 8}}`)))

	sink := &recordingSink{}
	l := &Loader{
		Remote:  &stubRemote{deviceErr: errors.New("down"), historyErr: errors.New("down")},
		Archive: a,
		Sink:    sink,
	}
	l.Load(context.Background())

	require.Len(t, sink.replayed, 1)
	require.Len(t, sink.replayed[0], 1)
}

func TestLoader_ArchiveOnly(t *testing.T) {
	a := openTestArchive(t)
	require.NoError(t, a.Record(context.Background(), time.Now(), []byte(`{}`)))

	sink := &recordingSink{}
	(&Loader{Archive: a, Sink: sink}).Load(context.Background())

	assert.Empty(t, sink.updates)
	require.Len(t, sink.replayed, 1)
	assert.Len(t, sink.replayed[0], 1)
}
