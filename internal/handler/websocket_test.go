package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tile-leaderboard/internal/websocket"
)

func TestAdminCompletionReachesWebSocket(t *testing.T) {
	hub := websocket.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	go hub.Run()
	defer hub.Stop()

	env := buildTestEnv(t, hub)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?channel=competitor:Rendi"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(websocket.CompetitorChannel("Rendi")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	health := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, health.Code)
	var status struct {
		Data HealthStatus `json:"data"`
	}
	require.NoError(t, json.NewDecoder(health.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Data.Status)
	assert.Equal(t, 1, status.Data.Connections)
	assert.Zero(t, status.Data.LeaderboardSubscribers)

	detail, err := env.service.Competitor(t.Context(), "Rendi")
	require.NoError(t, err)
	done := map[string]bool{}
	for _, c := range detail.Completions {
		done[c.TileName] = true
	}
	tiles, err := env.service.Tiles(t.Context())
	require.NoError(t, err)
	var tileID int64
	for _, tile := range tiles {
		if !done[tile.Name] {
			tileID = tile.ID
			break
		}
	}
	require.NotZero(t, tileID)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/completions",
		strings.NewReader(fmt.Sprintf(`{"rsn":"Rendi","tile_id":%d}`, tileID)))
	require.NoError(t, err)
	req.SetBasicAuth("demo", "demo123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg websocket.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, websocket.MessageTypeCompletionRecorded, msg.Type)
	assert.Equal(t, "competitor:Rendi", msg.Channel)
}
