package repository

import (
	"context"

	"github.com/wfunc/word-game/internal/models"
	"gorm.io/gorm"
)

// LobbyRecordRepository 大厅记录仓储接口
type LobbyRecordRepository interface {
	BaseRepository
	Upsert(ctx context.Context, record *models.LobbyRecord) error
	Find(ctx context.Context, guildID, gameID string) (*models.LobbyRecord, error)
	FindAll(ctx context.Context) ([]*models.LobbyRecord, error)
	Delete(ctx context.Context, guildID, gameID string) error
}

// lobbyRecordRepo 大厅记录仓储实现
type lobbyRecordRepo struct {
	*BaseRepo
}

// NewLobbyRecordRepository 创建大厅记录仓储
func NewLobbyRecordRepository(db *gorm.DB) LobbyRecordRepository {
	return &lobbyRecordRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Upsert 保存大厅记录（存在则更新，不存在则插入）
// 按 guild_id + game_id 定位单条记录，不同实例的写入互不影响
func (r *lobbyRecordRepo) Upsert(ctx context.Context, record *models.LobbyRecord) error {
	var existing models.LobbyRecord
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND game_id = ?", record.GuildID, record.GameID).
		First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(record).Error
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&existing).
		Update("data", record.Data).Error
}

// Find 查找单条大厅记录
func (r *lobbyRecordRepo) Find(ctx context.Context, guildID, gameID string) (*models.LobbyRecord, error) {
	var record models.LobbyRecord
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND game_id = ?", guildID, gameID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindAll 加载全部大厅记录
func (r *lobbyRecordRepo) FindAll(ctx context.Context) ([]*models.LobbyRecord, error) {
	var records []*models.LobbyRecord
	err := r.db.WithContext(ctx).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete 删除大厅记录
func (r *lobbyRecordRepo) Delete(ctx context.Context, guildID, gameID string) error {
	return r.db.WithContext(ctx).
		Where("guild_id = ? AND game_id = ?", guildID, gameID).
		Delete(&models.LobbyRecord{}).Error
}
