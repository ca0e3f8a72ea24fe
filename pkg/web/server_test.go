package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-gazer/internal/log"
	"github.com/teslashibe/go-gazer/pkg/gaze"
	"github.com/teslashibe/go-gazer/pkg/gazer"
	"github.com/teslashibe/go-gazer/pkg/protocol"
	"github.com/teslashibe/go-gazer/pkg/registry"
)

type fakeController struct {
	mu          sync.Mutex
	state       string
	tracker     string
	regressions []string
	overlay     bool
	saved       int
	cleared     int
	saveErr     error
	trackers    *registry.Registry[string]
}

func newFakeController() *fakeController {
	r := registry.New[string]("tracker", gaze.ErrUnknownTracker)
	r.Register("fixed", func() (string, error) { return "fixed", nil })
	r.Register("yunet", func() (string, error) { return "yunet", nil })
	return &fakeController{
		state:       "running",
		tracker:     "fixed",
		regressions: []string{"interaction"},
		trackers:    r,
	}
}

func (f *fakeController) Status() gazer.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gazer.Status{
		State:       f.state,
		Tracker:     f.tracker,
		Regressions: append([]string(nil), f.regressions...),
		Overlay:     f.overlay,
	}
}

func (f *fakeController) TrackerNames() []string    { return f.trackers.List() }
func (f *fakeController) RegressionNames() []string { return []string{"interaction", "weightedRidge"} }

func (f *fakeController) SetTracker(name string) error {
	t, err := f.trackers.New(name)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.tracker = t
	f.mu.Unlock()
	return nil
}

func (f *fakeController) SetRegression(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regressions = []string{name}
	return nil
}

func (f *fakeController) AddRegression(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regressions = append(f.regressions, name)
	return nil
}

func (f *fakeController) Pause() {
	f.mu.Lock()
	f.state = "paused"
	f.mu.Unlock()
}

func (f *fakeController) Resume() {
	f.mu.Lock()
	f.state = "running"
	f.mu.Unlock()
}

func (f *fakeController) SaveData(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return f.saveErr
}

func (f *fakeController) ClearData(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeController) ShowPredictionPoints(show bool) {
	f.mu.Lock()
	f.overlay = show
	f.mu.Unlock()
}

func newTestServer(ctrl Controller) *Server {
	return NewServer(ctrl, Config{Logger: log.Discard()})
}

func do(t *testing.T, s *Server, method, path string) (int, map[string]any) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(newFakeController())
	code, body := do(t, s, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, "fixed", body["tracker"])
}

func TestListEndpoints(t *testing.T) {
	s := newTestServer(newFakeController())

	code, body := do(t, s, http.MethodGet, "/api/trackers")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "fixed", body["active"])
	assert.Equal(t, []any{"fixed", "yunet"}, body["available"])

	code, body = do(t, s, http.MethodGet, "/api/regressions")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"interaction"}, body["active"])
	assert.Equal(t, []any{"interaction", "weightedRidge"}, body["available"])
}

func TestSwapEndpoints(t *testing.T) {
	ctrl := newFakeController()
	s := newTestServer(ctrl)

	code, body := do(t, s, http.MethodPost, "/api/tracker/yunet")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "yunet", body["tracker"])

	code, body = do(t, s, http.MethodPost, "/api/tracker/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, []any{"fixed", "yunet"}, body["options"])
	assert.Equal(t, "yunet", ctrl.Status().Tracker)

	code, body = do(t, s, http.MethodPost, "/api/regression/weightedRidge/add")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"interaction", "weightedRidge"}, body["regressions"])

	code, body = do(t, s, http.MethodPost, "/api/regression/weightedRidge")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"weightedRidge"}, body["regressions"])
}

func TestLifecycleEndpoints(t *testing.T) {
	ctrl := newFakeController()
	s := newTestServer(ctrl)

	_, body := do(t, s, http.MethodPost, "/api/pause")
	assert.Equal(t, "paused", body["state"])
	_, body = do(t, s, http.MethodPost, "/api/resume")
	assert.Equal(t, "running", body["state"])

	code, _ := do(t, s, http.MethodPost, "/api/save")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, s, http.MethodPost, "/api/clear")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, ctrl.saved)
	assert.Equal(t, 1, ctrl.cleared)

	ctrl.saveErr = errors.New("disk full")
	code, body = do(t, s, http.MethodPost, "/api/save")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "disk full", body["error"])
}

func TestOverlayEndpoint(t *testing.T) {
	tests := []struct {
		arg  string
		code int
		want bool
	}{
		{"on", http.StatusOK, true},
		{"off", http.StatusOK, false},
		{"true", http.StatusOK, true},
		{"0", http.StatusOK, false},
		{"maybe", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			ctrl := newFakeController()
			s := newTestServer(ctrl)
			code, _ := do(t, s, http.MethodPost, "/api/overlay/"+tt.arg)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.want, ctrl.Status().Overlay)
		})
	}
}

func TestGazeStream(t *testing.T) {
	s := newTestServer(newFakeController())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	ws, _, err := gws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/gaze", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return s.Viewers() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.PublishGaze(nil, 0) // skipped
	s.PublishGaze(&gaze.Prediction{
		X: 10, Y: 20,
		All: []*gaze.Point{{X: 10, Y: 20}, nil},
	}, 150*time.Millisecond)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	g, err := msg.GetGazeData()
	require.NoError(t, err)

	assert.Equal(t, 10.0, g.X)
	assert.EqualValues(t, 150, g.ElapsedMs)
	require.Len(t, g.All, 2)
	assert.Nil(t, g.All[1])
	assert.False(t, g.Smoothed)

	s.PublishSmoothed(gaze.Point{X: 5, Y: 6})
	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	msg, err = protocol.ParseMessage(data)
	require.NoError(t, err)
	g, err = msg.GetGazeData()
	require.NoError(t, err)
	assert.True(t, g.Smoothed)
	assert.Equal(t, 6.0, g.Y)
}
