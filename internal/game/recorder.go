package game

import (
	"context"
	"time"

	"github.com/wfunc/word-game/internal/models"
	"github.com/wfunc/word-game/internal/repository"
)

// DatabasePlayRecorder 出词流水记录实现，写入 word_plays 表
type DatabasePlayRecorder struct {
	repo repository.WordPlayRepository
}

// NewDatabasePlayRecorder 创建出词流水记录器
func NewDatabasePlayRecorder(repo repository.WordPlayRepository) *DatabasePlayRecorder {
	return &DatabasePlayRecorder{repo: repo}
}

// RecordPlay 记录一次被接受的出词
func (r *DatabasePlayRecorder) RecordPlay(ctx context.Context, guildID, gameID, playerID, word, sequence string) error {
	return r.repo.Create(ctx, &models.WordPlay{
		GuildID:  guildID,
		GameID:   gameID,
		PlayerID: playerID,
		Word:     word,
		Sequence: sequence,
		PlayedAt: time.Now(),
	})
}
