package lobby

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wfunc/word-game/internal/config"
	"github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/game"
	"github.com/wfunc/word-game/internal/lexicon"
)

// entry 注册表条目：大厅记录加上开局后的引擎
type entry struct {
	record *game.RecordData
	engine *game.Engine
}

// Manager 大厅管理器
//
// 注册表按 服务器ID -> 游戏ID 两级组织，显式注册/注销，
// 不做隐式清理；闲置大厅由定期扫描回收。
type Manager struct {
	mu      sync.RWMutex
	lobbies map[string]map[string]*entry

	cfg       *config.GameConfig
	lexicons  *lexicon.Manager
	persister game.StatePersister
	notifier  game.Notifier
	recorder  game.PlayRecorder
	logger    *zap.Logger
}

// NewManager 创建大厅管理器
func NewManager(cfg *config.GameConfig, lexicons *lexicon.Manager, persister game.StatePersister, notifier game.Notifier, recorder game.PlayRecorder, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		lobbies:   make(map[string]map[string]*entry),
		cfg:       cfg,
		lexicons:  lexicons,
		persister: persister,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
	}
}

// CreateOptions 创建大厅的参数
type CreateOptions struct {
	GuildID    string
	ChannelID  string
	OwnerID    string
	Language   string
	MaxPlayers int
}

// Create 创建大厅，发起者自动成为首位玩家
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*game.RecordData, error) {
	if opts.GuildID == "" || opts.OwnerID == "" {
		return nil, errors.New(errors.ErrInvalidParam, "缺少服务器ID或发起者")
	}

	language := opts.Language
	if language == "" {
		language = m.cfg.DefaultLanguage
	}
	if _, err := m.lexicons.Get(language); err != nil {
		return nil, err
	}

	maxPlayers := opts.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = m.cfg.MaxPlayersLimit
	}
	if maxPlayers < m.cfg.MinPlayers || maxPlayers > m.cfg.MaxPlayersLimit {
		return nil, errors.Newf(errors.ErrInvalidParam, "人数上限需在%d到%d之间", m.cfg.MinPlayers, m.cfg.MaxPlayersLimit)
	}

	record := &game.RecordData{
		GameID:     uuid.New().String(),
		ChannelID:  opts.ChannelID,
		Owner:      opts.OwnerID,
		Players:    []string{opts.OwnerID},
		Banned:     []string{},
		MaxPlayers: maxPlayers,
		Settings: game.Settings{
			Language: language,
			Lives:    m.cfg.DefaultLives,
			TurnTime: m.cfg.DefaultTurnTime,
		},
	}
	record.Touch(time.Now())

	m.mu.Lock()
	if m.lobbies[opts.GuildID] == nil {
		m.lobbies[opts.GuildID] = make(map[string]*entry)
	}
	m.lobbies[opts.GuildID][record.GameID] = &entry{record: record}
	out := record.Clone()
	m.mu.Unlock()

	m.persist(ctx, opts.GuildID, out)
	m.logger.Info("创建大厅",
		zap.String("guild_id", opts.GuildID),
		zap.String("game_id", out.GameID),
		zap.String("owner", opts.OwnerID))
	return out, nil
}

// Join 加入大厅；被封禁的玩家和已开局的房间都拒绝
func (m *Manager) Join(ctx context.Context, guildID, gameID, playerID string) error {
	m.mu.Lock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if ent.engine != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	if contains(ent.record.Banned, playerID) {
		m.mu.Unlock()
		return errors.New(errors.ErrBannedFromLobby, "你已被该大厅封禁")
	}
	if contains(ent.record.Players, playerID) {
		m.mu.Unlock()
		return errors.New(errors.ErrAlreadyJoined, "你已在大厅中")
	}
	if len(ent.record.Players) >= ent.record.MaxPlayers {
		m.mu.Unlock()
		return errors.New(errors.ErrLobbyFull, "大厅人数已满")
	}
	ent.record.Players = append(ent.record.Players, playerID)
	ent.record.Touch(time.Now())
	record := ent.record.Clone()
	m.mu.Unlock()

	m.persist(ctx, guildID, record)
	return nil
}

// Leave 离开大厅，发起者不能离开（应取消大厅）
func (m *Manager) Leave(ctx context.Context, guildID, gameID, playerID string) error {
	m.mu.Lock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if ent.engine != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	if playerID == ent.record.Owner {
		m.mu.Unlock()
		return errors.New(errors.ErrOwnerCannotLeave, "发起者不能离开，请取消大厅")
	}
	if !contains(ent.record.Players, playerID) {
		m.mu.Unlock()
		return errors.New(errors.ErrNotInLobby, "你不在大厅中")
	}
	ent.record.Players = remove(ent.record.Players, playerID)
	ent.record.Touch(time.Now())
	record := ent.record.Clone()
	m.mu.Unlock()

	m.persist(ctx, guildID, record)
	return nil
}

// Ban 封禁玩家：移出名册并加入封禁列表，此后无法再加入
// 仅发起者可执行，发起者不能封禁自己
func (m *Manager) Ban(ctx context.Context, guildID, gameID, actorID, targetID string) error {
	m.mu.Lock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if actorID != ent.record.Owner {
		m.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "只有发起者可以封禁玩家")
	}
	if targetID == ent.record.Owner {
		m.mu.Unlock()
		return errors.New(errors.ErrCannotBanOwner, "不能封禁发起者")
	}
	if ent.engine != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	ent.record.Players = remove(ent.record.Players, targetID)
	if !contains(ent.record.Banned, targetID) {
		ent.record.Banned = append(ent.record.Banned, targetID)
	}
	ent.record.Touch(time.Now())
	record := ent.record.Clone()
	m.mu.Unlock()

	m.persist(ctx, guildID, record)
	return nil
}

// TransferOwnership 移交大厅所有权给名册中的另一名玩家
// 仅发起者可在开局前执行
func (m *Manager) TransferOwnership(ctx context.Context, guildID, gameID, actorID, targetID string) error {
	m.mu.Lock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if actorID != ent.record.Owner {
		m.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "只有发起者可以移交所有权")
	}
	if ent.engine != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	if !contains(ent.record.Players, targetID) {
		m.mu.Unlock()
		return errors.New(errors.ErrNotInLobby, "目标玩家不在大厅中")
	}
	ent.record.Owner = targetID
	ent.record.Touch(time.Now())
	record := ent.record.Clone()
	m.mu.Unlock()

	m.persist(ctx, guildID, record)
	m.logger.Info("移交大厅所有权",
		zap.String("guild_id", guildID),
		zap.String("game_id", gameID),
		zap.String("from", actorID),
		zap.String("to", targetID))
	return nil
}

// UpdateSettings 修改游戏设置，仅发起者可在开局前执行
// 生命数和回合时限都有边界约束
func (m *Manager) UpdateSettings(ctx context.Context, guildID, gameID, actorID string, settings game.Settings) error {
	if settings.Lives < m.cfg.MinLives || settings.Lives > m.cfg.MaxLives {
		return errors.Newf(errors.ErrInvalidParam, "生命数需在%d到%d之间", m.cfg.MinLives, m.cfg.MaxLives)
	}
	if settings.TurnTime < m.cfg.MinTurnTime || settings.TurnTime > m.cfg.MaxTurnTime {
		return errors.Newf(errors.ErrInvalidParam, "回合时限需在%d到%d秒之间", m.cfg.MinTurnTime, m.cfg.MaxTurnTime)
	}
	if settings.Language != "" {
		if _, err := m.lexicons.Get(settings.Language); err != nil {
			return err
		}
	}

	m.mu.Lock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if actorID != ent.record.Owner {
		m.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "只有发起者可以修改设置")
	}
	if ent.engine != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	if settings.Language == "" {
		settings.Language = ent.record.Settings.Language
	}
	ent.record.Settings = settings
	ent.record.Touch(time.Now())
	record := ent.record.Clone()
	m.mu.Unlock()

	m.persist(ctx, guildID, record)
	return nil
}

// Start 开始游戏，仅发起者可执行，人数不足拒绝
func (m *Manager) Start(ctx context.Context, guildID, gameID, actorID string) error {
	m.mu.Lock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if actorID != ent.record.Owner {
		m.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "只有发起者可以开始游戏")
	}
	if ent.engine != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	if len(ent.record.Players) < m.cfg.MinPlayers {
		m.mu.Unlock()
		return errors.Newf(errors.ErrNotEnoughPlayers, "至少需要%d名玩家", m.cfg.MinPlayers)
	}

	engine, err := m.buildEngineLocked(guildID, ent, false)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	ent.engine = engine
	m.mu.Unlock()

	return engine.Start()
}

// CreateSolo 创建并立即开始单人游戏：玩家对战词库驱动的AI对手
func (m *Manager) CreateSolo(ctx context.Context, opts CreateOptions) (*game.RecordData, error) {
	opts.MaxPlayers = m.cfg.MinPlayers
	record, err := m.Create(ctx, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	ent, err := m.entryLocked(opts.GuildID, record.GameID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	engine, err := m.buildEngineLocked(opts.GuildID, ent, true)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	ent.engine = engine
	m.mu.Unlock()

	if err := engine.Start(); err != nil {
		return nil, err
	}
	return engine.Record(), nil
}

// buildEngineLocked 从大厅记录构建引擎
func (m *Manager) buildEngineLocked(guildID string, ent *entry, solo bool) (*game.Engine, error) {
	lex, err := m.lexicons.Get(ent.record.Settings.Language)
	if err != nil {
		return nil, err
	}
	gameID := ent.record.GameID
	return game.NewEngine(game.Options{
		GuildID:          guildID,
		Record:           ent.record,
		Lexicon:          lex,
		Players:          ent.record.Players,
		Solo:             solo,
		RivalDelay:       m.cfg.RivalDelay,
		HistorySize:      m.cfg.HistorySize,
		EventLogSize:     m.cfg.EventLogSize,
		SequenceAttempts: m.cfg.SequenceAttempts,
		Logger:           m.logger,
		Persister:        m.persister,
		Notifier:         m.notifier,
		Recorder:         m.recorder,
		OnEnd: func(reason game.EndReason) {
			m.onGameEnd(guildID, gameID)
		},
	})
}

// SubmitWord 把玩家提交路由给对应引擎
func (m *Manager) SubmitWord(ctx context.Context, guildID, gameID, playerID, word string) error {
	engine, err := m.engineOf(guildID, gameID)
	if err != nil {
		return err
	}
	return engine.SubmitWord(ctx, playerID, word)
}

// Stop 终止进行中的游戏，引擎校验执行者身份
func (m *Manager) Stop(ctx context.Context, guildID, gameID, actorID string) error {
	engine, err := m.engineOf(guildID, gameID)
	if err != nil {
		return err
	}
	return engine.Stop(actorID)
}

// Cancel 取消未开局的大厅，仅发起者可执行
func (m *Manager) Cancel(ctx context.Context, guildID, gameID, actorID string) error {
	m.mu.Lock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if actorID != ent.record.Owner {
		m.mu.Unlock()
		return errors.New(errors.ErrNotOwner, "只有发起者可以取消大厅")
	}
	if ent.engine != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	m.removeLocked(guildID, gameID)
	m.mu.Unlock()

	m.deleteRecord(ctx, guildID, gameID)
	m.logger.Info("取消大厅",
		zap.String("guild_id", guildID),
		zap.String("game_id", gameID))
	return nil
}

// Lobby 查询大厅记录，返回的是副本
// 开局后记录由引擎独占写入，必须经引擎加锁复制
func (m *Manager) Lobby(guildID, gameID string) (*game.RecordData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		return nil, err
	}
	if ent.engine != nil {
		return ent.engine.Record(), nil
	}
	return ent.record.Clone(), nil
}

// List 列出某服务器的全部大厅，返回的都是副本
func (m *Manager) List(guildID string) []*game.RecordData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	games := m.lobbies[guildID]
	out := make([]*game.RecordData, 0, len(games))
	for _, ent := range games {
		if ent.engine != nil {
			out = append(out, ent.engine.Record())
			continue
		}
		out = append(out, ent.record.Clone())
	}
	return out
}

// GameSnapshot 查询进行中游戏的渲染快照
func (m *Manager) GameSnapshot(guildID, gameID string) (*game.Snapshot, error) {
	engine, err := m.engineOf(guildID, gameID)
	if err != nil {
		return nil, err
	}
	return engine.Snapshot(), nil
}

// Restore 启动恢复：重建大厅，进行中的游戏以新计时器继续
func (m *Manager) Restore(ctx context.Context, rm *game.RecoveryManager) error {
	records, err := rm.RecoverAll(ctx)
	if err != nil {
		return err
	}

	var resumed []*game.Engine
	m.mu.Lock()
	for guildID, games := range records {
		for gameID, record := range games {
			ent := &entry{record: record}
			if m.lobbies[guildID] == nil {
				m.lobbies[guildID] = make(map[string]*entry)
			}
			m.lobbies[guildID][gameID] = ent

			if record.GameData == nil {
				continue
			}
			lex, err := m.lexicons.Get(record.Settings.Language)
			if err != nil {
				m.logger.Warn("恢复游戏时词库不可用",
					zap.String("game_id", gameID),
					zap.Error(err))
				continue
			}
			engine, err := game.NewEngineFromData(game.Options{
				GuildID:          guildID,
				Record:           record,
				Lexicon:          lex,
				RivalDelay:       m.cfg.RivalDelay,
				HistorySize:      m.cfg.HistorySize,
				EventLogSize:     m.cfg.EventLogSize,
				SequenceAttempts: m.cfg.SequenceAttempts,
				Logger:           m.logger,
				Persister:        m.persister,
				Notifier:         m.notifier,
				Recorder:         m.recorder,
				OnEnd: func(game.EndReason) {
					m.onGameEnd(guildID, gameID)
				},
			}, record.GameData)
			if err != nil {
				m.logger.Warn("重建游戏引擎失败，按大厅恢复",
					zap.String("game_id", gameID),
					zap.Error(err))
				record.GameData = nil
				continue
			}
			ent.engine = engine
			resumed = append(resumed, engine)
		}
	}
	m.mu.Unlock()

	// 锁外重新武装计时器
	for _, engine := range resumed {
		if err := engine.Start(); err != nil {
			m.logger.Error("恢复游戏启动失败", zap.Error(err))
		}
	}
	m.logger.Info("大厅恢复完成", zap.Int("resumed_games", len(resumed)))
	return nil
}

// RunSweeper 定期回收闲置大厅，直到ctx取消
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// IsIdle 判断大厅是否超过闲置时限；进行中的游戏永不视为闲置
func (m *Manager) IsIdle(record *game.RecordData, now time.Time) bool {
	if record.GameData != nil && record.GameData.Active {
		return false
	}
	return record.LastActivity < now.Add(-m.cfg.LobbyIdleTimeout).Unix()
}

// sweep 回收超过闲置时限且未开局的大厅
func (m *Manager) sweep(ctx context.Context) {
	now := time.Now()

	type target struct{ guildID, gameID string }
	var targets []target

	m.mu.Lock()
	for guildID, games := range m.lobbies {
		for gameID, ent := range games {
			if ent.engine == nil && m.IsIdle(ent.record, now) {
				targets = append(targets, target{guildID, gameID})
			}
		}
	}
	for _, tg := range targets {
		m.removeLocked(tg.guildID, tg.gameID)
	}
	m.mu.Unlock()

	for _, tg := range targets {
		m.deleteRecord(ctx, tg.guildID, tg.gameID)
		m.logger.Info("回收闲置大厅",
			zap.String("guild_id", tg.guildID),
			zap.String("game_id", tg.gameID))
	}
}

// onGameEnd 游戏终局回调：注销注册表并删除持久化记录
func (m *Manager) onGameEnd(guildID, gameID string) {
	m.mu.Lock()
	m.removeLocked(guildID, gameID)
	m.mu.Unlock()
	m.deleteRecord(context.Background(), guildID, gameID)
}

func (m *Manager) entryLocked(guildID, gameID string) (*entry, error) {
	games, ok := m.lobbies[guildID]
	if !ok {
		return nil, errors.New(errors.ErrLobbyNotFound, "大厅不存在")
	}
	ent, ok := games[gameID]
	if !ok {
		return nil, errors.New(errors.ErrLobbyNotFound, "大厅不存在")
	}
	return ent, nil
}

func (m *Manager) engineOf(guildID, gameID string) (*game.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ent, err := m.entryLocked(guildID, gameID)
	if err != nil {
		return nil, err
	}
	if ent.engine == nil {
		return nil, errors.New(errors.ErrNoActiveGame, "游戏未在进行中")
	}
	return ent.engine, nil
}

func (m *Manager) removeLocked(guildID, gameID string) {
	if games, ok := m.lobbies[guildID]; ok {
		delete(games, gameID)
		if len(games) == 0 {
			delete(m.lobbies, guildID)
		}
	}
}

// persist 落盘大厅记录，失败只记录日志
func (m *Manager) persist(ctx context.Context, guildID string, record *game.RecordData) {
	if err := m.persister.Save(ctx, guildID, record.GameID, record); err != nil {
		m.logger.Error("保存大厅记录失败",
			zap.String("guild_id", guildID),
			zap.String("game_id", record.GameID),
			zap.Error(err))
	}
}

func (m *Manager) deleteRecord(ctx context.Context, guildID, gameID string) {
	if err := m.persister.Delete(ctx, guildID, gameID); err != nil {
		m.logger.Error("删除大厅记录失败",
			zap.String("guild_id", guildID),
			zap.String("game_id", gameID),
			zap.Error(err))
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
