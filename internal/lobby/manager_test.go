package lobby

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/word-game/internal/config"
	apperrors "github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/game"
	"github.com/wfunc/word-game/internal/lexicon"
)

var testWords = []string{"banana", "band", "bandit", "abandon", "canal", "anchor"}

func newTestConfig() *config.GameConfig {
	return &config.GameConfig{
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
}

func newTestManager(t *testing.T) (*Manager, *game.MemoryStatePersister) {
	t.Helper()
	lexicons := lexicon.NewManager("")
	lexicons.Put(lexicon.New("en", testWords))
	persister := game.NewMemoryStatePersister()
	m := NewManager(newTestConfig(), lexicons, persister, nil, nil, zap.NewNop())
	return m, persister
}

func createLobby(t *testing.T, m *Manager) *game.RecordData {
	t.Helper()
	record, err := m.Create(context.Background(), CreateOptions{
		GuildID:   "g1",
		ChannelID: "c1",
		OwnerID:   "p1",
	})
	require.NoError(t, err)
	return record
}

func TestManager_Create(t *testing.T) {
	m, persister := newTestManager(t)
	record := createLobby(t, m)

	assert.NotEmpty(t, record.GameID)
	assert.Equal(t, "p1", record.Owner)
	assert.Equal(t, []string{"p1"}, record.Players)
	assert.Equal(t, "en", record.Settings.Language)
	assert.Equal(t, 3, record.Settings.Lives)

	// 创建即落盘
	saved, err := persister.Load(context.Background(), "g1", record.GameID)
	require.NoError(t, err)
	assert.Equal(t, record.GameID, saved.GameID)
}

func TestManager_CreateUnsupportedLanguage(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Create(context.Background(), CreateOptions{
		GuildID:  "g1",
		OwnerID:  "p1",
		Language: "fr",
	})
	assert.Equal(t, apperrors.ErrUnsupportedLanguage, apperrors.GetCode(err))
}

func TestManager_JoinLeave(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()

	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))

	err := m.Join(ctx, "g1", record.GameID, "p2")
	assert.Equal(t, apperrors.ErrAlreadyJoined, apperrors.GetCode(err))

	err = m.Join(ctx, "g1", "missing", "p3")
	assert.Equal(t, apperrors.ErrLobbyNotFound, apperrors.GetCode(err))

	err = m.Leave(ctx, "g1", record.GameID, "p1")
	assert.Equal(t, apperrors.ErrOwnerCannotLeave, apperrors.GetCode(err))

	err = m.Leave(ctx, "g1", record.GameID, "p9")
	assert.Equal(t, apperrors.ErrNotInLobby, apperrors.GetCode(err))

	require.NoError(t, m.Leave(ctx, "g1", record.GameID, "p2"))
	lobby, err := m.Lobby("g1", record.GameID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, lobby.Players)
}

func TestManager_LobbyFull(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	record, err := m.Create(ctx, CreateOptions{GuildID: "g1", OwnerID: "p1", MaxPlayers: 2})
	require.NoError(t, err)

	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))
	err = m.Join(ctx, "g1", record.GameID, "p3")
	assert.Equal(t, apperrors.ErrLobbyFull, apperrors.GetCode(err))
}

func TestManager_Ban(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))

	err := m.Ban(ctx, "g1", record.GameID, "p2", "p1")
	assert.Equal(t, apperrors.ErrNotOwner, apperrors.GetCode(err))

	err = m.Ban(ctx, "g1", record.GameID, "p1", "p1")
	assert.Equal(t, apperrors.ErrCannotBanOwner, apperrors.GetCode(err))

	require.NoError(t, m.Ban(ctx, "g1", record.GameID, "p1", "p2"))
	lobby, err := m.Lobby("g1", record.GameID)
	require.NoError(t, err)
	assert.NotContains(t, lobby.Players, "p2")

	// 封禁后不能再加入
	err = m.Join(ctx, "g1", record.GameID, "p2")
	assert.Equal(t, apperrors.ErrBannedFromLobby, apperrors.GetCode(err))
}

func TestManager_TransferOwnership(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))

	err := m.TransferOwnership(ctx, "g1", record.GameID, "p2", "p2")
	assert.Equal(t, apperrors.ErrNotOwner, apperrors.GetCode(err))

	err = m.TransferOwnership(ctx, "g1", record.GameID, "p1", "p9")
	assert.Equal(t, apperrors.ErrNotInLobby, apperrors.GetCode(err))

	require.NoError(t, m.TransferOwnership(ctx, "g1", record.GameID, "p1", "p2"))
	lobby, err := m.Lobby("g1", record.GameID)
	require.NoError(t, err)
	assert.Equal(t, "p2", lobby.Owner)

	// 移交后原发起者可以离开
	require.NoError(t, m.Leave(ctx, "g1", record.GameID, "p1"))
}

func TestManager_UpdateSettings(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()

	err := m.UpdateSettings(ctx, "g1", record.GameID, "p1", game.Settings{Lives: 99, TurnTime: 20})
	assert.Equal(t, apperrors.ErrInvalidParam, apperrors.GetCode(err))

	err = m.UpdateSettings(ctx, "g1", record.GameID, "p1", game.Settings{Lives: 5, TurnTime: 3})
	assert.Equal(t, apperrors.ErrInvalidParam, apperrors.GetCode(err))

	err = m.UpdateSettings(ctx, "g1", record.GameID, "p2", game.Settings{Lives: 5, TurnTime: 10})
	assert.Equal(t, apperrors.ErrNotOwner, apperrors.GetCode(err))

	require.NoError(t, m.UpdateSettings(ctx, "g1", record.GameID, "p1", game.Settings{Lives: 5, TurnTime: 10}))
	lobby, err := m.Lobby("g1", record.GameID)
	require.NoError(t, err)
	assert.Equal(t, 5, lobby.Settings.Lives)
	assert.Equal(t, 10, lobby.Settings.TurnTime)
	// 未指定语言时保留原语言
	assert.Equal(t, "en", lobby.Settings.Language)
}

func TestManager_LobbyReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))

	// 改写查询结果不影响注册表内的记录
	lobby, err := m.Lobby("g1", record.GameID)
	require.NoError(t, err)
	lobby.Owner = "intruder"
	lobby.Players = append(lobby.Players, "intruder")

	again, err := m.Lobby("g1", record.GameID)
	require.NoError(t, err)
	assert.Equal(t, "p1", again.Owner)
	assert.NotContains(t, again.Players, "intruder")

	for _, r := range m.List("g1") {
		assert.NotContains(t, r.Players, "intruder")
	}
}

func TestManager_LobbyReadSafeDuringGame(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))
	require.NoError(t, m.Start(ctx, "g1", record.GameID, "p1"))

	// 引擎持续写回记录时并发查询并序列化，竞态检测下必须干净
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			snap, err := m.GameSnapshot("g1", record.GameID)
			if err != nil {
				return
			}
			_ = m.SubmitWord(ctx, "g1", record.GameID, snap.CurrentPlayer, "zzzz")
		}
	}()

	for i := 0; i < 50; i++ {
		lobby, err := m.Lobby("g1", record.GameID)
		require.NoError(t, err)
		_, err = json.Marshal(lobby)
		require.NoError(t, err)
		for _, r := range m.List("g1") {
			_, err = json.Marshal(r)
			require.NoError(t, err)
		}
	}
	<-done
}

func TestManager_StartAndPlay(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()

	err := m.Start(ctx, "g1", record.GameID, "p1")
	assert.Equal(t, apperrors.ErrNotEnoughPlayers, apperrors.GetCode(err))

	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))

	err = m.Start(ctx, "g1", record.GameID, "p2")
	assert.Equal(t, apperrors.ErrNotOwner, apperrors.GetCode(err))

	require.NoError(t, m.Start(ctx, "g1", record.GameID, "p1"))

	// 开局后大厅冻结
	err = m.Join(ctx, "g1", record.GameID, "p3")
	assert.Equal(t, apperrors.ErrGameAlreadyStarted, apperrors.GetCode(err))
	err = m.Start(ctx, "g1", record.GameID, "p1")
	assert.Equal(t, apperrors.ErrGameAlreadyStarted, apperrors.GetCode(err))

	snap, err := m.GameSnapshot("g1", record.GameID)
	require.NoError(t, err)
	assert.Equal(t, game.StateAwaiting, snap.State)
	assert.Equal(t, "p1", snap.CurrentPlayer)
	assert.NotEmpty(t, snap.Sequence)
}

func TestManager_SubmitWithoutGame(t *testing.T) {
	m, _ := newTestManager(t)
	record := createLobby(t, m)

	err := m.SubmitWord(context.Background(), "g1", record.GameID, "p1", "banana")
	assert.Equal(t, apperrors.ErrNoActiveGame, apperrors.GetCode(err))
}

func TestManager_StopCleansUp(t *testing.T) {
	m, persister := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", record.GameID, "p2"))
	require.NoError(t, m.Start(ctx, "g1", record.GameID, "p1"))

	require.NoError(t, m.Stop(ctx, "g1", record.GameID, "p1"))

	// 终局回调异步注销大厅并删除记录
	require.Eventually(t, func() bool {
		_, err := m.Lobby("g1", record.GameID)
		return apperrors.GetCode(err) == apperrors.ErrLobbyNotFound
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := persister.Load(ctx, "g1", record.GameID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestManager_Cancel(t *testing.T) {
	m, persister := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()

	err := m.Cancel(ctx, "g1", record.GameID, "p2")
	assert.Equal(t, apperrors.ErrNotOwner, apperrors.GetCode(err))

	require.NoError(t, m.Cancel(ctx, "g1", record.GameID, "p1"))
	_, err = m.Lobby("g1", record.GameID)
	assert.Equal(t, apperrors.ErrLobbyNotFound, apperrors.GetCode(err))
	_, err = persister.Load(ctx, "g1", record.GameID)
	assert.Error(t, err)
}

func TestManager_Solo(t *testing.T) {
	m, _ := newTestManager(t)
	record, err := m.CreateSolo(context.Background(), CreateOptions{
		GuildID: "g1",
		OwnerID: "p1",
	})
	require.NoError(t, err)

	snap, err := m.GameSnapshot("g1", record.GameID)
	require.NoError(t, err)
	assert.True(t, snap.Solo)
	assert.Equal(t, "p1", snap.CurrentPlayer)
	assert.Len(t, snap.Players, 2)
}

func TestManager_Sweep(t *testing.T) {
	m, persister := newTestManager(t)
	record := createLobby(t, m)
	ctx := context.Background()

	// 活跃大厅不回收
	m.sweep(ctx)
	_, err := m.Lobby("g1", record.GameID)
	require.NoError(t, err)

	m.mu.Lock()
	m.lobbies["g1"][record.GameID].record.LastActivity = time.Now().Add(-time.Hour).Unix()
	m.mu.Unlock()

	m.sweep(ctx)
	_, err = m.Lobby("g1", record.GameID)
	assert.Equal(t, apperrors.ErrLobbyNotFound, apperrors.GetCode(err))
	_, err = persister.Load(ctx, "g1", record.GameID)
	assert.Error(t, err)
}

func TestManager_Restore(t *testing.T) {
	lexicons := lexicon.NewManager("")
	lexicons.Put(lexicon.New("en", testWords))
	persister := game.NewMemoryStatePersister()
	ctx := context.Background()

	// 纯大厅记录
	lobbyRecord := &game.RecordData{
		GameID:     "game-a",
		Owner:      "p1",
		Players:    []string{"p1", "p2"},
		Banned:     []string{},
		MaxPlayers: 4,
		Settings:   game.Settings{Language: "en", Lives: 3, TurnTime: 30},
	}
	require.NoError(t, persister.Save(ctx, "g1", "game-a", lobbyRecord))

	// 进行中的游戏
	activeRecord := &game.RecordData{
		GameID:     "game-b",
		Owner:      "p1",
		Players:    []string{"p1", "p2"},
		Banned:     []string{},
		MaxPlayers: 4,
		Settings:   game.Settings{Language: "en", Lives: 3, TurnTime: 30},
		GameData: &game.GameData{
			Players:            []string{"p1", "p2"},
			UsedWords:          []string{"banana"},
			Lives:              map[string]int{"p1": 3, "p2": 2},
			CurrentSeq:         "an",
			CurrentPlayerIndex: 1,
			StartedAt:          time.Now().Add(-time.Minute).Unix(),
			Active:             true,
		},
	}
	require.NoError(t, persister.Save(ctx, "g1", "game-b", activeRecord))

	m := NewManager(newTestConfig(), lexicons, persister, nil, nil, zap.NewNop())
	rm := game.NewRecoveryManager(persister, lexicons, zap.NewNop())
	require.NoError(t, m.Restore(ctx, rm))

	// 大厅按原样恢复，未开局
	_, err := m.Lobby("g1", "game-a")
	require.NoError(t, err)
	_, err = m.GameSnapshot("g1", "game-a")
	assert.Equal(t, apperrors.ErrNoActiveGame, apperrors.GetCode(err))

	// 进行中的游戏以新计时器继续
	snap, err := m.GameSnapshot("g1", "game-b")
	require.NoError(t, err)
	assert.Equal(t, game.StateAwaiting, snap.State)
	assert.Equal(t, "p2", snap.CurrentPlayer)
	assert.Equal(t, "an", snap.Sequence)
	assert.Equal(t, 1, snap.WordsPlayed)
}
