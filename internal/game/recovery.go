package game

import (
	"context"

	"go.uber.org/zap"

	"github.com/wfunc/word-game/internal/lexicon"
)

// RecoveryManager 启动恢复：从持久化存储加载全部大厅记录，
// 校验后交给上层重建大厅和进行中的游戏。
// 无法修复的记录直接丢弃并从存储中清除，不让个别坏记录阻断启动。
type RecoveryManager struct {
	persister StatePersister
	lexicons  *lexicon.Manager
	logger    *zap.Logger
}

// NewRecoveryManager 创建恢复管理器
func NewRecoveryManager(persister StatePersister, lexicons *lexicon.Manager, logger *zap.Logger) *RecoveryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryManager{
		persister: persister,
		lexicons:  lexicons,
		logger:    logger,
	}
}

// RecoverAll 加载并校验全部记录
// 返回按 服务器ID -> 游戏ID 组织的健全记录
func (rm *RecoveryManager) RecoverAll(ctx context.Context) (map[string]map[string]*RecordData, error) {
	all, err := rm.persister.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	total, dropped := 0, 0
	out := make(map[string]map[string]*RecordData)
	for guildID, games := range all {
		for gameID, record := range games {
			total++
			if reason := rm.validate(record); reason != "" {
				dropped++
				rm.logger.Warn("丢弃无法恢复的大厅记录",
					zap.String("guild_id", guildID),
					zap.String("game_id", gameID),
					zap.String("reason", reason))
				if err := rm.persister.Delete(ctx, guildID, gameID); err != nil {
					rm.logger.Error("清除坏记录失败",
						zap.String("guild_id", guildID),
						zap.String("game_id", gameID),
						zap.Error(err))
				}
				continue
			}
			if out[guildID] == nil {
				out[guildID] = make(map[string]*RecordData)
			}
			out[guildID][gameID] = record
		}
	}

	rm.logger.Info("大厅记录恢复完成",
		zap.Int("total", total),
		zap.Int("recovered", total-dropped),
		zap.Int("dropped", dropped))
	return out, nil
}

// validate 校验单条记录，返回空串表示健全，否则为丢弃原因
func (rm *RecoveryManager) validate(record *RecordData) string {
	if record.GameID == "" || record.Owner == "" {
		return "缺少游戏ID或发起者"
	}
	if len(record.Players) == 0 {
		return "玩家名册为空"
	}
	if record.Settings.Language == "" || record.Settings.Lives <= 0 || record.Settings.TurnTime <= 0 {
		return "游戏设置不合法"
	}
	if _, err := rm.lexicons.Get(record.Settings.Language); err != nil {
		return "词库不可用: " + record.Settings.Language
	}

	if record.GameData != nil {
		if !record.GameData.Active {
			// 已结束的游戏不该留有记录，清掉游戏数据后当大厅恢复
			record.GameData = nil
			return ""
		}
		if len(record.GameData.Players) == 0 {
			return "游戏数据缺少玩家"
		}
	}
	return ""
}
