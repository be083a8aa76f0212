package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/models"
)

func sampleRecord() *RecordData {
	return &RecordData{
		GameID:     "game-1",
		ChannelID:  "chan-1",
		Owner:      "p1",
		Players:    []string{"p1", "p2"},
		Banned:     []string{"troll"},
		MaxPlayers: 4,
		Settings:   Settings{Language: "en", Lives: 3, TurnTime: 20},
		GameData: &GameData{
			Players:            []string{"p1", "p2"},
			UsedWords:          []string{"banana", "anchor"},
			UsedLetters:        map[string][]string{"p1": {"a", "b", "n"}},
			Lives:              map[string]int{"p1": 3, "p2": 2},
			WordCounts:         map[string]int{"p1": 2},
			Logs:               []EventEntry{{Actor: "p1", Kind: EventAccepted, Word: "banana", Sequence: "an"}},
			SequenceHistory:    []string{"an", "ba"},
			CurrentSeq:         "nd",
			CurrentPlayerIndex: 1,
			StartedAt:          1700000000,
			Active:             true,
		},
	}
}

func TestRecordCodec_RoundTrip(t *testing.T) {
	original := sampleRecord()

	data, err := encodeRecord(original)
	require.NoError(t, err)
	decoded, err := decodeRecord(data)
	require.NoError(t, err)

	// 集合按成员比较，不关心序列化顺序
	assert.Equal(t, original.GameID, decoded.GameID)
	assert.Equal(t, original.Owner, decoded.Owner)
	assert.ElementsMatch(t, original.Players, decoded.Players)
	assert.ElementsMatch(t, original.Banned, decoded.Banned)
	assert.Equal(t, original.Settings, decoded.Settings)
	require.NotNil(t, decoded.GameData)
	assert.ElementsMatch(t, original.GameData.UsedWords, decoded.GameData.UsedWords)
	assert.Equal(t, original.GameData.Lives, decoded.GameData.Lives)
	assert.Equal(t, original.GameData.Logs, decoded.GameData.Logs)
	assert.Equal(t, original.GameData.CurrentSeq, decoded.GameData.CurrentSeq)
	assert.Equal(t, original.GameData.CurrentPlayerIndex, decoded.GameData.CurrentPlayerIndex)
}

func TestDecodeRecord_SanitizesMissingCollections(t *testing.T) {
	// 旧版本记录缺少集合字段，解码后必须补齐为空集合
	decoded, err := decodeRecord(`{"game_id":"g1","owner":"p1","players":["p1"],"game_data":{"players":["p1"],"current_player_index":5}}`)
	require.NoError(t, err)

	assert.NotNil(t, decoded.Banned)
	require.NotNil(t, decoded.GameData)
	assert.NotNil(t, decoded.GameData.UsedWords)
	assert.NotNil(t, decoded.GameData.UsedLetters)
	assert.NotNil(t, decoded.GameData.Lives)
	assert.NotNil(t, decoded.GameData.Logs)
	// 越界的回合索引被归零
	assert.Equal(t, 0, decoded.GameData.CurrentPlayerIndex)
}

func TestDecodeRecord_Corrupt(t *testing.T) {
	_, err := decodeRecord("not-json")
	assert.Equal(t, apperrors.ErrDataIntegrity, apperrors.GetCode(err))
}

func TestMemoryStatePersister(t *testing.T) {
	persister := NewMemoryStatePersister()
	ctx := context.Background()

	_, err := persister.Load(ctx, "g", "game-1")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.GetCode(err))

	require.NoError(t, persister.Save(ctx, "g", "game-1", sampleRecord()))
	record, err := persister.Load(ctx, "g", "game-1")
	require.NoError(t, err)
	assert.Equal(t, "game-1", record.GameID)

	all, err := persister.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all["g"], 1)

	require.NoError(t, persister.Delete(ctx, "g", "game-1"))
	_, err = persister.Load(ctx, "g", "game-1")
	assert.Error(t, err)
}

// fakeLobbyRepo 内存假仓储，用于验证数据库持久化器的解码行为
type fakeLobbyRepo struct {
	rows    []*models.LobbyRecord
	deleted []string
}

func (f *fakeLobbyRepo) GetDB() *gorm.DB { return nil }

func (f *fakeLobbyRepo) Upsert(ctx context.Context, record *models.LobbyRecord) error {
	f.rows = append(f.rows, record)
	return nil
}

func (f *fakeLobbyRepo) Find(ctx context.Context, guildID, gameID string) (*models.LobbyRecord, error) {
	for _, row := range f.rows {
		if row.GuildID == guildID && row.GameID == gameID {
			return row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLobbyRepo) FindAll(ctx context.Context) ([]*models.LobbyRecord, error) {
	return f.rows, nil
}

func (f *fakeLobbyRepo) Delete(ctx context.Context, guildID, gameID string) error {
	f.deleted = append(f.deleted, guildID+"/"+gameID)
	return nil
}

func TestDatabaseStatePersister_LoadAllDropsCorrupt(t *testing.T) {
	good, err := encodeRecord(sampleRecord())
	require.NoError(t, err)

	repo := &fakeLobbyRepo{rows: []*models.LobbyRecord{
		{GuildID: "g1", GameID: "game-1", Data: good},
		{GuildID: "g1", GameID: "game-2", Data: "{{{corrupt"},
	}}
	persister := NewDatabaseStatePersister(repo, zap.NewNop())

	all, err := persister.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all["g1"], 1)
	assert.NotNil(t, all["g1"]["game-1"])
}

func TestDatabaseStatePersister_SaveLoad(t *testing.T) {
	repo := &fakeLobbyRepo{}
	persister := NewDatabaseStatePersister(repo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, persister.Save(ctx, "g1", "game-1", sampleRecord()))
	record, err := persister.Load(ctx, "g1", "game-1")
	require.NoError(t, err)
	assert.Equal(t, "game-1", record.GameID)

	_, err = persister.Load(ctx, "g1", "missing")
	assert.Equal(t, apperrors.ErrNotFound, apperrors.GetCode(err))
}
