package game

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/models"
	"github.com/wfunc/word-game/internal/repository"
)

// StatePersister 大厅记录持久化接口
// 记录按 服务器ID -> 游戏ID 两级寻址
type StatePersister interface {
	Save(ctx context.Context, guildID, gameID string, record *RecordData) error
	Load(ctx context.Context, guildID, gameID string) (*RecordData, error)
	LoadAll(ctx context.Context) (map[string]map[string]*RecordData, error)
	Delete(ctx context.Context, guildID, gameID string) error
}

// MemoryStatePersister 内存实现，测试用
type MemoryStatePersister struct {
	mu      sync.RWMutex
	records map[string]map[string]string
}

// NewMemoryStatePersister 创建内存持久化器
func NewMemoryStatePersister() *MemoryStatePersister {
	return &MemoryStatePersister{
		records: make(map[string]map[string]string),
	}
}

// Save 保存记录
func (m *MemoryStatePersister) Save(ctx context.Context, guildID, gameID string, record *RecordData) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[guildID] == nil {
		m.records[guildID] = make(map[string]string)
	}
	m.records[guildID][gameID] = data
	return nil
}

// Load 读取记录
func (m *MemoryStatePersister) Load(ctx context.Context, guildID, gameID string) (*RecordData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	games, ok := m.records[guildID]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "记录不存在")
	}
	data, ok := games[gameID]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "记录不存在")
	}
	return decodeRecord(data)
}

// LoadAll 读取全部记录
func (m *MemoryStatePersister) LoadAll(ctx context.Context) (map[string]map[string]*RecordData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]*RecordData, len(m.records))
	for guildID, games := range m.records {
		out[guildID] = make(map[string]*RecordData, len(games))
		for gameID, data := range games {
			record, err := decodeRecord(data)
			if err != nil {
				return nil, err
			}
			out[guildID][gameID] = record
		}
	}
	return out, nil
}

// Delete 删除记录
func (m *MemoryStatePersister) Delete(ctx context.Context, guildID, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if games, ok := m.records[guildID]; ok {
		delete(games, gameID)
		if len(games) == 0 {
			delete(m.records, guildID)
		}
	}
	return nil
}

// DatabaseStatePersister 数据库实现，记录以JSON文本存入 lobby_records 表
type DatabaseStatePersister struct {
	repo   repository.LobbyRecordRepository
	logger *zap.Logger
}

// NewDatabaseStatePersister 创建数据库持久化器
func NewDatabaseStatePersister(repo repository.LobbyRecordRepository, logger *zap.Logger) *DatabaseStatePersister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseStatePersister{repo: repo, logger: logger}
}

// Save 整条记录覆盖写入
// 单实例持有各自子树的写权，覆盖语义不会互相踩踏
func (d *DatabaseStatePersister) Save(ctx context.Context, guildID, gameID string, record *RecordData) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	err = d.repo.Upsert(ctx, &models.LobbyRecord{
		GuildID: guildID,
		GameID:  gameID,
		Data:    data,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseUpdate, "写入大厅记录失败")
	}
	return nil
}

// Load 读取并解码单条记录
func (d *DatabaseStatePersister) Load(ctx context.Context, guildID, gameID string) (*RecordData, error) {
	row, err := d.repo.Find(ctx, guildID, gameID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Wrap(err, errors.ErrNotFound, "记录不存在")
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery, "读取大厅记录失败")
	}
	return decodeRecord(row.Data)
}

// LoadAll 读取全部记录，解码失败的条目丢弃并告警，不让启动恢复整体失败
func (d *DatabaseStatePersister) LoadAll(ctx context.Context) (map[string]map[string]*RecordData, error) {
	rows, err := d.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]*RecordData)
	for _, row := range rows {
		record, err := decodeRecord(row.Data)
		if err != nil {
			d.logger.Warn("丢弃无法解码的大厅记录",
				zap.String("guild_id", row.GuildID),
				zap.String("game_id", row.GameID),
				zap.Error(err))
			continue
		}
		if out[row.GuildID] == nil {
			out[row.GuildID] = make(map[string]*RecordData)
		}
		out[row.GuildID][row.GameID] = record
	}
	return out, nil
}

// Delete 删除记录
func (d *DatabaseStatePersister) Delete(ctx context.Context, guildID, gameID string) error {
	return d.repo.Delete(ctx, guildID, gameID)
}

// encodeRecord 运行态到线格式的唯一序列化入口
func encodeRecord(record *RecordData) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrDataIntegrity, "序列化大厅记录失败")
	}
	return string(data), nil
}

// decodeRecord 线格式到运行态的唯一反序列化入口，附带缺失字段修复
func decodeRecord(data string) (*RecordData, error) {
	var record RecordData
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, errors.Wrap(err, errors.ErrDataIntegrity, "解析大厅记录失败")
	}
	record.sanitize()
	return &record, nil
}
