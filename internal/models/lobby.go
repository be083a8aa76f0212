package models

import (
	"time"
)

// LobbyRecord 大厅持久化记录（按 guild_id + game_id 唯一）
// Data 字段保存大厅及游戏状态的JSON快照
type LobbyRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GuildID   string    `gorm:"uniqueIndex:idx_guild_game;size:32;not null" json:"guild_id"`
	GameID    string    `gorm:"uniqueIndex:idx_guild_game;size:36;not null" json:"game_id"`
	Data      string    `gorm:"type:text" json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (LobbyRecord) TableName() string {
	return "lobby_records"
}

// WordPlay 出词流水记录（用于统计，不参与游戏状态恢复）
type WordPlay struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GuildID  string    `gorm:"index;size:32;not null" json:"guild_id"`
	GameID   string    `gorm:"index;size:36;not null" json:"game_id"`
	PlayerID string    `gorm:"index;size:32;not null" json:"player_id"`
	Word     string    `gorm:"size:64;not null" json:"word"`
	Sequence string    `gorm:"size:8" json:"sequence"`
	PlayedAt time.Time `json:"played_at"`
}

// TableName 指定表名
func (WordPlay) TableName() string {
	return "word_plays"
}
