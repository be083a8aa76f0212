package repository

import (
	"context"

	"github.com/wfunc/word-game/internal/models"
	"gorm.io/gorm"
)

// WordPlayRepository 出词流水仓储接口
type WordPlayRepository interface {
	BaseRepository
	Create(ctx context.Context, play *models.WordPlay) error
	CountByGame(ctx context.Context, guildID, gameID string) (int64, error)
	FindByPlayer(ctx context.Context, playerID string, limit int) ([]*models.WordPlay, error)
}

// wordPlayRepo 出词流水仓储实现
type wordPlayRepo struct {
	*BaseRepo
}

// NewWordPlayRepository 创建出词流水仓储
func NewWordPlayRepository(db *gorm.DB) WordPlayRepository {
	return &wordPlayRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 写入一条出词记录
func (r *wordPlayRepo) Create(ctx context.Context, play *models.WordPlay) error {
	return r.db.WithContext(ctx).Create(play).Error
}

// CountByGame 统计一局游戏的出词总数
func (r *wordPlayRepo) CountByGame(ctx context.Context, guildID, gameID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WordPlay{}).
		Where("guild_id = ? AND game_id = ?", guildID, gameID).
		Count(&count).Error
	return count, err
}

// FindByPlayer 查询玩家最近的出词记录
func (r *wordPlayRepo) FindByPlayer(ctx context.Context, playerID string, limit int) ([]*models.WordPlay, error) {
	var plays []*models.WordPlay
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("played_at DESC").
		Limit(limit).
		Find(&plays).Error
	return plays, err
}
