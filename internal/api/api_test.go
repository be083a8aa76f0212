package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/word-game/internal/config"
	"github.com/wfunc/word-game/internal/game"
	"github.com/wfunc/word-game/internal/lexicon"
	"github.com/wfunc/word-game/internal/lobby"
	"github.com/wfunc/word-game/internal/models"
	ws "github.com/wfunc/word-game/internal/websocket"
)

// fakePlayRepo 内存假仓储，避免测试依赖数据库
type fakePlayRepo struct {
	plays []*models.WordPlay
}

func (f *fakePlayRepo) GetDB() *gorm.DB { return nil }

func (f *fakePlayRepo) Create(ctx context.Context, play *models.WordPlay) error {
	f.plays = append(f.plays, play)
	return nil
}

func (f *fakePlayRepo) CountByGame(ctx context.Context, guildID, gameID string) (int64, error) {
	return int64(len(f.plays)), nil
}

func (f *fakePlayRepo) FindByPlayer(ctx context.Context, playerID string, limit int) ([]*models.WordPlay, error) {
	var out []*models.WordPlay
	for _, p := range f.plays {
		if p.PlayerID == playerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T) (*Router, *fakePlayRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.GameConfig{
		DefaultLanguage:  "en",
		DefaultLives:     3,
		MinLives:         1,
		MaxLives:         10,
		DefaultTurnTime:  20,
		MinTurnTime:      5,
		MaxTurnTime:      30,
		MinPlayers:       2,
		MaxPlayersLimit:  6,
		HistorySize:      5,
		EventLogSize:     5,
		SequenceAttempts: 100,
		RivalDelay:       time.Second,
		LobbyIdleTimeout: 10 * time.Minute,
		CleanupInterval:  time.Minute,
	}
	lexicons := lexicon.NewManager("")
	lexicons.Put(lexicon.New("en", []string{"banana", "band", "bandit", "abandon", "canal", "anchor"}))

	persister := game.NewMemoryStatePersister()
	plays := &fakePlayRepo{}
	recorder := game.NewDatabasePlayRecorder(plays)

	hub := ws.NewHub(zap.NewNop())
	manager := lobby.NewManager(cfg, lexicons, persister, hub, recorder, zap.NewNop())
	hub.SetCommander(manager)

	return NewRouter(manager, hub, plays, "/ws", zap.NewNop()), plays
}

func doRequest(t *testing.T, router *Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)
	return w
}

func createTestLobby(t *testing.T, router *Router) string {
	t.Helper()
	w := doRequest(t, router, http.MethodPost, "/api/v1/guilds/g1/lobbies", gin.H{
		"owner_id": "p1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			GameID string `json:"game_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.GameID)
	return resp.Data.GameID
}

func TestAPI_Health(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_LobbyLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)
	gameID := createTestLobby(t, router)

	// 查询
	w := doRequest(t, router, http.MethodGet, "/api/v1/guilds/g1/lobbies/"+gameID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 加入
	w = doRequest(t, router, http.MethodPost, "/api/v1/guilds/g1/lobbies/"+gameID+"/join", gin.H{"player_id": "p2"})
	assert.Equal(t, http.StatusOK, w.Code)

	// 非发起者开局被拒
	w = doRequest(t, router, http.MethodPost, "/api/v1/guilds/g1/lobbies/"+gameID+"/start", gin.H{"actor_id": "p2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 开局
	w = doRequest(t, router, http.MethodPost, "/api/v1/guilds/g1/lobbies/"+gameID+"/start", gin.H{"actor_id": "p1"})
	assert.Equal(t, http.StatusOK, w.Code)

	// 快照
	w = doRequest(t, router, http.MethodGet, "/api/v1/guilds/g1/lobbies/"+gameID+"/game", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapResp struct {
		Data game.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapResp))
	assert.Equal(t, "p1", snapResp.Data.CurrentPlayer)
	assert.NotEmpty(t, snapResp.Data.Sequence)
}

func TestAPI_LobbyNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doRequest(t, router, http.MethodGet, "/api/v1/guilds/g1/lobbies/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_SubmitWordRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	gameID := createTestLobby(t, router)
	doRequest(t, router, http.MethodPost, "/api/v1/guilds/g1/lobbies/"+gameID+"/join", gin.H{"player_id": "p2"})
	doRequest(t, router, http.MethodPost, "/api/v1/guilds/g1/lobbies/"+gameID+"/start", gin.H{"actor_id": "p1"})

	// 不在词库的单词按领域拒绝返回409
	w := doRequest(t, router, http.MethodPost, "/api/v1/guilds/g1/lobbies/"+gameID+"/words", gin.H{
		"player_id": "p1",
		"word":      "zzzz",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_CancelLobby(t *testing.T) {
	router, _ := newTestRouter(t)
	gameID := createTestLobby(t, router)

	w := doRequest(t, router, http.MethodDelete, "/api/v1/guilds/g1/lobbies/"+gameID+"?actor_id=p2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/v1/guilds/g1/lobbies/"+gameID+"?actor_id=p1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/guilds/g1/lobbies/"+gameID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_PlayerPlays(t *testing.T) {
	router, plays := newTestRouter(t)
	plays.plays = append(plays.plays, &models.WordPlay{
		GuildID:  "g1",
		GameID:   "game-1",
		PlayerID: "p1",
		Word:     "banana",
		Sequence: "an",
		PlayedAt: time.Now(),
	})

	w := doRequest(t, router, http.MethodGet, "/api/v1/players/p1/plays", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*models.WordPlay `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "banana", resp.Data[0].Word)
}
