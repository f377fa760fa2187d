package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gazemap-go/internal/surface"
	"gazemap-go/internal/types"
)

type fakeController struct {
	starts atomic.Int32
	stops  atomic.Int32
}

func (c *fakeController) Start() error { c.starts.Add(1); return nil }
func (c *fakeController) Stop() error  { c.stops.Add(1); return nil }
func (c *fakeController) Status() map[string]any {
	return map[string]any{"state": "idle"}
}

func testSurfaces(t *testing.T) []surface.Surface {
	t.Helper()
	reg := surface.NewRegistry()
	markers, err := surface.CornerMarkers([4]int{0, 1, 2, 3}, surface.Size{Width: 800, Height: 600}, 50, 10)
	require.NoError(t, err)
	_, err = reg.Register("main", markers, surface.Size{Width: 800, Height: 600})
	require.NoError(t, err)
	return reg.Surfaces()
}

func TestParseCommand(t *testing.T) {
	cmd, ok := ParseCommand("startSendingGazeData")
	require.True(t, ok)
	assert.Equal(t, CommandStart, cmd)

	cmd, ok = ParseCommand("stopSendingGazeData")
	require.True(t, ok)
	assert.Equal(t, CommandStop, cmd)

	_, ok = ParseCommand("snapshot_request")
	assert.False(t, ok)
	_, ok = ParseCommand("")
	assert.False(t, ok)
}

func TestHandleConfig(t *testing.T) {
	srv := New(Options{Port: 9999, Surfaces: testSurfaces(t)})

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Port     int `json:"port"`
		Surfaces []struct {
			Name      string  `json:"name"`
			Width     float64 `json:"width"`
			MarkerIDs []int   `json:"marker_ids"`
		} `json:"surfaces"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 9999, payload.Port)
	require.Len(t, payload.Surfaces, 1)
	assert.Equal(t, "main", payload.Surfaces[0].Name)
	assert.Equal(t, 800.0, payload.Surfaces[0].Width)
	assert.Equal(t, []int{0, 1, 2, 3}, payload.Surfaces[0].MarkerIDs)
}

func TestHandleStatusMergesSources(t *testing.T) {
	srv := New(Options{
		Controller:   &fakeController{},
		DeviceStatus: func() any { return map[string]any{"remote": "ok"} },
	})
	srv.Emit(types.GazeEvent{{Name: "main"}})

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "idle", payload["state"])
	assert.Equal(t, map[string]any{"remote": "ok"}, payload["device"])
	assert.Equal(t, float64(0), payload["ws_clients"])
}

func TestEmitDropsWhenQueueIsFull(t *testing.T) {
	srv := New(Options{Buffer: 1})
	srv.Emit(types.GazeEvent{{Name: "a"}})
	srv.Emit(types.GazeEvent{{Name: "b"}})
	assert.Equal(t, uint64(1), srv.dropped.Load())
}

func TestWebsocketCommandsAndDisconnect(t *testing.T) {
	ctrl := &fakeController{}
	srv := New(Options{Port: 8888, Surfaces: testSurfaces(t), Controller: ctrl})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.broadcast(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "config", hello["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "startSendingGazeData"}))
	require.Eventually(t, func() bool { return ctrl.starts.Load() == 1 }, time.Second, 5*time.Millisecond)

	srv.Emit(types.GazeEvent{{NormPos: [2]float64{0.5, 0.5}, Name: "main"}})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"gazeData","data":[{"norm_pos":[0.5,0.5],"name":"main"}]}`, string(data))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "status_request"}))
	var status types.StatusMessage
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type)
	assert.Equal(t, float64(1), status.Status["ws_clients"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unknownCommand"}))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return ctrl.stops.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), ctrl.starts.Load())
	require.Eventually(t, func() bool { return srv.clientCount() == 0 }, time.Second, 5*time.Millisecond)
}
