package game

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/lexicon"
)

// Notifier 展示层通知接口，引擎每次状态变更后推送渲染快照
type Notifier interface {
	PublishSnapshot(snapshot *Snapshot) error
}

// PlayRecorder 出词流水记录接口（可选，用于统计）
type PlayRecorder interface {
	RecordPlay(ctx context.Context, guildID, gameID, playerID, word, sequence string) error
}

// Options 引擎构造参数
type Options struct {
	GuildID          string
	Record           *RecordData // 引擎在游戏期间持有记录并负责写回
	Lexicon          *lexicon.Lexicon
	Players          []string // 回合顺序
	Solo             bool
	RivalDelay       time.Duration // 单人模式AI出词的节奏延迟
	HistorySize      int           // 字母序列历史上限
	EventLogSize     int           // 事件日志上限
	SequenceAttempts int
	Logger           *zap.Logger
	Persister        StatePersister
	Notifier         Notifier
	Recorder         PlayRecorder
	OnEnd            func(reason EndReason)
	Rand             *rand.Rand
}

// Engine 回合引擎，管理单局游戏的全部状态变更
//
// 并发模型：互斥锁保护状态，回合令牌做仲裁。
// 每次（重新）武装计时器都会递增令牌，延迟回调携带当时的令牌，
// 执行时令牌不匹配即静默放弃。超时回调与玩家提交竞争时，
// 先拿到锁并校验通过的一方生效，另一方作废。
type Engine struct {
	mu sync.Mutex

	guildID string
	record  *RecordData
	lex     *lexicon.Lexicon
	gen     *lexicon.SequenceGenerator

	players []*Player
	current int

	sequence string
	history  []string
	used     map[string]struct{}
	events   []EventEntry
	retries  int // 当前回合内的拒绝次数，回合结束清零

	startedAt time.Time
	active    bool
	endReason EndReason
	winner    string
	solo      bool

	token  uint64 // 回合令牌
	timer  *time.Timer
	pacing *time.Timer

	turnTimeout  time.Duration
	rivalDelay   time.Duration
	historySize  int
	eventLogSize int

	logger    *zap.Logger
	persister StatePersister
	notifier  Notifier
	recorder  PlayRecorder
	onEnd     func(EndReason)
	rng       *rand.Rand
}

// NewEngine 创建新游戏的引擎，生成首个字母序列但不启动计时
func NewEngine(opts Options) (*Engine, error) {
	if opts.Record == nil || opts.Lexicon == nil {
		return nil, errors.New(errors.ErrInvalidParam, "引擎缺少必要参数")
	}
	if len(opts.Players) < 1 {
		return nil, errors.New(errors.ErrInvalidParam, "玩家列表为空")
	}

	e := newEngineBase(opts)

	for _, id := range opts.Players {
		e.players = append(e.players, newPlayer(id, opts.Record.Settings.Lives, false))
	}
	if opts.Solo {
		// AI对手占一个回合位，生命不会被扣减
		e.players = append(e.players, newPlayer(RivalID, opts.Record.Settings.Lives, true))
	}

	seq, err := e.gen.Next(e.lex, e.gen.RandomLength(), nil)
	if err != nil {
		return nil, err
	}
	e.sequence = seq
	return e, nil
}

func newEngineBase(opts Options) *Engine {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = 5
	}
	eventLogSize := opts.EventLogSize
	if eventLogSize <= 0 {
		eventLogSize = 5
	}
	rivalDelay := opts.RivalDelay
	if rivalDelay <= 0 {
		rivalDelay = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		guildID:      opts.GuildID,
		record:       opts.Record,
		lex:          opts.Lexicon,
		gen:          lexicon.NewSequenceGenerator(rng, opts.SequenceAttempts),
		used:         make(map[string]struct{}),
		solo:         opts.Solo,
		turnTimeout:  time.Duration(opts.Record.Settings.TurnTime) * time.Second,
		rivalDelay:   rivalDelay,
		historySize:  historySize,
		eventLogSize: eventLogSize,
		logger:       logger,
		persister:    opts.Persister,
		notifier:     opts.Notifier,
		recorder:     opts.Recorder,
		onEnd:        opts.OnEnd,
		rng:          rng,
	}
}

// Start 开始第一个回合：记录起始时间、武装计时器并落盘
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return errors.New(errors.ErrGameAlreadyStarted, "游戏已经开始")
	}
	if e.endReason != "" {
		return errors.New(errors.ErrGameEnded, "游戏已结束")
	}

	e.active = true
	if e.startedAt.IsZero() {
		e.startedAt = time.Now()
	}
	e.logger.Info("游戏开始",
		zap.String("guild_id", e.guildID),
		zap.String("game_id", e.record.GameID),
		zap.Int("players", len(e.players)),
		zap.Bool("solo", e.solo))

	e.beginTurnLocked()
	e.persistLocked()
	e.notifyLocked()
	return nil
}

// SubmitWord 处理玩家提交的单词
//
// 拒绝（不在词库、未含序列、已被使用）不扣生命，但会重置回合计时器。
// 接受则推进回合。返回的领域错误用于向玩家反馈拒绝原因。
func (e *Engine) SubmitWord(ctx context.Context, playerID, word string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recoverLocked()

	if !e.active {
		return errors.New(errors.ErrNoActiveGame, "游戏未在进行中")
	}
	cur := e.players[e.current]
	if cur.Scripted || cur.ID != playerID {
		return errors.New(errors.ErrNotYourTurn, "还没轮到你")
	}

	word = strings.ToLower(strings.TrimSpace(word))

	// 拒绝路径：记录事件、重置计时器，不改动生命和回合顺序
	if reject := e.classifyLocked(word); reject != nil {
		e.retries++
		e.appendEventLocked(EventEntry{Actor: playerID, Kind: EventRejected, Word: word, Sequence: e.sequence})
		e.armTimerLocked()
		e.persistLocked()
		e.notifyLocked()
		return reject
	}

	// 接受路径
	e.used[word] = struct{}{}
	cur.Words++
	cur.foldLetters(word)
	if cur.coverageComplete() {
		cur.Lives++
		cur.Letters = make(map[rune]struct{})
		e.appendEventLocked(EventEntry{Actor: playerID, Kind: EventBonus})
		e.logger.Info("玩家集齐字母获得奖励生命",
			zap.String("game_id", e.record.GameID),
			zap.String("player_id", playerID))
	}
	e.appendEventLocked(EventEntry{Actor: playerID, Kind: EventAccepted, Word: word, Sequence: e.sequence})
	e.recordPlayLocked(ctx, playerID, word)

	e.rotateSequenceLocked()
	e.advanceLocked()
	e.beginTurnLocked()
	e.persistLocked()
	e.notifyLocked()
	return nil
}

// classifyLocked 判定单词是否应被拒绝，合法返回nil
func (e *Engine) classifyLocked(word string) error {
	if !e.lex.Contains(word) {
		return errors.Newf(errors.ErrWordNotInLexicon, "单词 %s 不在词库中", word)
	}
	if !strings.Contains(word, e.sequence) {
		return errors.Newf(errors.ErrWordMissingSeq, "单词 %s 不包含序列 %s", word, e.sequence)
	}
	if _, ok := e.used[word]; ok {
		return errors.Newf(errors.ErrWordAlreadyUsed, "单词 %s 已被使用", word)
	}
	return nil
}

// Stop 终止游戏，只有控制者可以执行；游戏已结束时幂等返回nil
func (e *Engine) Stop(actorID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return nil
	}
	if actorID != e.record.Owner {
		return errors.New(errors.ErrNotController, "只有发起者可以终止游戏")
	}
	e.logger.Info("游戏被手动终止",
		zap.String("game_id", e.record.GameID),
		zap.String("actor", actorID))
	e.endLocked(EndReasonStopped, "")
	return nil
}

// Snapshot 返回当前状态的渲染快照
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Record 返回大厅记录的一致性副本，含最新的游戏数据
// 引擎在游戏期间独占写记录，外部读取只能经由这里拿副本
func (e *Engine) Record() *RecordData {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.record.Clone()
	c.GameData = e.toDataLocked()
	return c
}

// Active 游戏是否进行中
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// handleTimeout 计时器到期回调，令牌过期则静默放弃
func (e *Engine) handleTimeout(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.recoverLocked()

	if !e.active || token != e.token {
		return
	}

	cur := e.players[e.current]
	cur.Lives--
	e.appendEventLocked(EventEntry{Actor: cur.ID, Kind: EventTimeout, Sequence: e.sequence})
	e.logger.Info("回合超时",
		zap.String("game_id", e.record.GameID),
		zap.String("player_id", cur.ID),
		zap.Int("lives", cur.Lives))

	// 超时后换一个序列，不让下家继续被同一个序列卡住
	e.rotateSequenceLocked()
	e.advanceLocked()
	e.beginTurnLocked()
	e.persistLocked()
	e.notifyLocked()
}

// resolveRivalLocked 单人模式AI对手的回合：同步出词，无计时器竞争
// 出词后经过一段纯节奏性的延迟再为人类玩家武装计时器
func (e *Engine) resolveRivalLocked() {
	word, ok := e.lex.FindFirstContaining(e.sequence, e.used)
	if !ok {
		// AI无词可出，玩家立即获胜
		e.logger.Info("AI对手无词可出",
			zap.String("game_id", e.record.GameID),
			zap.String("sequence", e.sequence))
		e.endLocked(EndReasonWin, e.humanLocked())
		return
	}

	rival := e.players[e.current]
	e.used[word] = struct{}{}
	rival.Words++
	e.appendEventLocked(EventEntry{Actor: RivalID, Kind: EventRival, Word: word, Sequence: e.sequence})

	e.rotateSequenceLocked()
	e.advanceLocked()

	e.claimLocked()
	token := e.token
	e.pacing = time.AfterFunc(e.rivalDelay, func() {
		e.armAfterPacing(token)
	})
}

// armAfterPacing 节奏延迟到期，为人类玩家武装回合计时器
func (e *Engine) armAfterPacing(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active || token != e.token {
		return
	}
	e.armTimerLocked()
}

// beginTurnLocked 进入当前玩家的回合：
// 先检查终局条件，再按玩家类型武装计时器或调度AI
func (e *Engine) beginTurnLocked() {
	if !e.active {
		return
	}
	e.retries = 0

	alive := 0
	var last *Player
	for _, p := range e.players {
		if p.Lives > 0 {
			alive++
			last = p
		}
	}
	if alive <= 1 {
		if e.solo {
			// 单人模式只剩AI，判负
			if last != nil && last.Scripted {
				e.endLocked(EndReasonDefeat, "")
				return
			}
			e.endLocked(EndReasonWin, e.humanLocked())
			return
		}
		winner := ""
		if last != nil {
			winner = last.ID
		}
		e.endLocked(EndReasonWin, winner)
		return
	}

	if e.players[e.current].Scripted {
		e.resolveRivalLocked()
	} else {
		e.armTimerLocked()
	}
}

// armTimerLocked 重新武装回合计时器并递增令牌，旧回调随即作废
func (e *Engine) armTimerLocked() {
	e.claimLocked()
	token := e.token
	e.timer = time.AfterFunc(e.turnTimeout, func() {
		e.handleTimeout(token)
	})
}

// claimLocked 递增回合令牌并取消未触发的延迟回调
func (e *Engine) claimLocked() {
	e.token++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.pacing != nil {
		e.pacing.Stop()
		e.pacing = nil
	}
}

// advanceLocked 顺时针推进到下一个未淘汰的玩家
func (e *Engine) advanceLocked() {
	n := len(e.players)
	for i := 1; i <= n; i++ {
		idx := (e.current + i) % n
		if e.players[idx].Lives > 0 {
			e.current = idx
			return
		}
	}
}

// rotateSequenceLocked 把当前序列压入历史并生成新序列
// 避免列表即当前历史，生成失败时保留旧序列并记录错误
func (e *Engine) rotateSequenceLocked() {
	e.history = append(e.history, e.sequence)
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
	seq, err := e.gen.Next(e.lex, e.gen.RandomLength(), e.history)
	if err != nil {
		e.logger.Error("生成字母序列失败",
			zap.String("game_id", e.record.GameID),
			zap.Error(err))
		return
	}
	e.sequence = seq
}

// endLocked 进入终态：取消计时器、落盘、通知并回调上层
func (e *Engine) endLocked(reason EndReason, winner string) {
	e.active = false
	e.endReason = reason
	e.winner = winner
	e.claimLocked()
	e.appendEventLocked(EventEntry{Actor: winner, Kind: EventEnded})
	e.logger.Info("游戏结束",
		zap.String("guild_id", e.guildID),
		zap.String("game_id", e.record.GameID),
		zap.String("reason", string(reason)),
		zap.String("winner", winner))

	e.persistLocked()
	e.notifyLocked()
	if e.onEnd != nil {
		// 回调里会操作注册表和持久化记录，放到锁外执行
		go e.onEnd(reason)
	}
}

// recoverLocked 回合处理中的未预期错误让本局进入失败终态，不拖垮进程
func (e *Engine) recoverLocked() {
	if r := recover(); r != nil {
		e.logger.Error("回合处理发生未预期错误",
			zap.String("game_id", e.record.GameID),
			zap.Any("panic", r),
			zap.Stack("stack"))
		if e.active {
			e.endLocked(EndReasonFault, "")
		}
	}
}

// humanLocked 单人模式下的人类玩家ID
func (e *Engine) humanLocked() string {
	for _, p := range e.players {
		if !p.Scripted {
			return p.ID
		}
	}
	return ""
}

func (e *Engine) appendEventLocked(entry EventEntry) {
	e.events = append(e.events, entry)
	if len(e.events) > e.eventLogSize {
		e.events = e.events[len(e.events)-e.eventLogSize:]
	}
}

// persistLocked 写回持久化快照，失败只记录日志不阻断游戏
func (e *Engine) persistLocked() {
	if e.persister == nil {
		return
	}
	e.record.GameData = e.toDataLocked()
	e.record.Touch(time.Now())
	if err := e.persister.Save(context.Background(), e.guildID, e.record.GameID, e.record); err != nil {
		e.logger.Error("保存游戏状态失败",
			zap.String("guild_id", e.guildID),
			zap.String("game_id", e.record.GameID),
			zap.Error(err))
	}
}

// notifyLocked 推送渲染快照，失败只记录日志
func (e *Engine) notifyLocked() {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.PublishSnapshot(e.snapshotLocked()); err != nil {
		e.logger.Error("推送游戏快照失败",
			zap.String("game_id", e.record.GameID),
			zap.Error(err))
	}
}

func (e *Engine) recordPlayLocked(ctx context.Context, playerID, word string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordPlay(ctx, e.guildID, e.record.GameID, playerID, word, e.sequence); err != nil {
		e.logger.Error("记录出词流水失败",
			zap.String("game_id", e.record.GameID),
			zap.Error(err))
	}
}

func (e *Engine) snapshotLocked() *Snapshot {
	state := StateAwaiting
	if !e.active {
		state = StateEnded
	}
	players := make([]PlayerSnapshot, 0, len(e.players))
	for _, p := range e.players {
		players = append(players, PlayerSnapshot{
			ID:         p.ID,
			Lives:      p.Lives,
			Words:      p.Words,
			Scripted:   p.Scripted,
			Eliminated: p.Lives <= 0,
		})
	}
	events := make([]EventEntry, len(e.events))
	copy(events, e.events)

	elapsed := 0
	if !e.startedAt.IsZero() {
		elapsed = int(time.Since(e.startedAt).Seconds())
	}

	return &Snapshot{
		GuildID:        e.guildID,
		GameID:         e.record.GameID,
		ChannelID:      e.record.ChannelID,
		State:          state,
		EndReason:      e.endReason,
		Winner:         e.winner,
		Sequence:       e.sequence,
		Players:        players,
		CurrentPlayer:  e.players[e.current].ID,
		ElapsedSeconds: elapsed,
		WordsPlayed:    len(e.used),
		Events:         events,
		CurrentLetters: e.players[e.current].sortedLetters(),
		TurnRetries:    e.retries,
		Solo:           e.solo,
	}
}

// toDataLocked 把运行态转换为线格式
func (e *Engine) toDataLocked() *GameData {
	order := make([]string, 0, len(e.players))
	lives := make(map[string]int, len(e.players))
	counts := make(map[string]int, len(e.players))
	letters := make(map[string][]string, len(e.players))
	for _, p := range e.players {
		if p.Scripted {
			continue
		}
		order = append(order, p.ID)
		lives[p.ID] = p.Lives
		counts[p.ID] = p.Words
		letters[p.ID] = p.sortedLetters()
	}

	used := make([]string, 0, len(e.used))
	for w := range e.used {
		used = append(used, w)
	}

	logs := make([]EventEntry, len(e.events))
	copy(logs, e.events)
	history := make([]string, len(e.history))
	copy(history, e.history)

	idx := e.current
	if e.players[idx].Scripted {
		// AI回合持久化为人类玩家待行动，恢复后重新调度
		idx = 0
	}

	return &GameData{
		Players:            order,
		UsedWords:          used,
		UsedLetters:        letters,
		Lives:              lives,
		WordCounts:         counts,
		Logs:               logs,
		SequenceHistory:    history,
		CurrentSeq:         e.sequence,
		CurrentPlayerIndex: idx,
		StartedAt:          e.startedAt.Unix(),
		Active:             e.active,
		Solo:               e.solo,
		EndReason:          string(e.endReason),
	}
}

// NewEngineFromData 从持久化数据重建引擎，用于服务重启后的恢复
// 重建后处于等待状态，调用方需再调用 Start 重新武装计时器
func NewEngineFromData(opts Options, data *GameData) (*Engine, error) {
	if opts.Record == nil || opts.Lexicon == nil || data == nil {
		return nil, errors.New(errors.ErrInvalidParam, "引擎缺少必要参数")
	}
	data.sanitize()
	if len(data.Players) == 0 {
		return nil, errors.New(errors.ErrDataIntegrity, "游戏数据缺少玩家")
	}

	opts.Solo = data.Solo
	e := newEngineBase(opts)

	for _, id := range data.Players {
		p := newPlayer(id, opts.Record.Settings.Lives, false)
		if lives, ok := data.Lives[id]; ok {
			p.Lives = lives
		}
		p.Words = data.WordCounts[id]
		for _, s := range data.UsedLetters[id] {
			for _, r := range s {
				p.Letters[r] = struct{}{}
			}
		}
		e.players = append(e.players, p)
	}
	if data.Solo {
		e.players = append(e.players, newPlayer(RivalID, opts.Record.Settings.Lives, true))
	}

	for _, w := range data.UsedWords {
		e.used[w] = struct{}{}
	}
	e.events = append(e.events, data.Logs...)
	e.history = append(e.history, data.SequenceHistory...)
	e.current = data.CurrentPlayerIndex
	if data.StartedAt > 0 {
		e.startedAt = time.Unix(data.StartedAt, 0)
	}

	e.sequence = data.CurrentSeq
	if e.sequence == "" {
		seq, err := e.gen.Next(e.lex, e.gen.RandomLength(), e.history)
		if err != nil {
			return nil, err
		}
		e.sequence = seq
	}
	return e, nil
}
