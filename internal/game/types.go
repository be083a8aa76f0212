package game

import (
	"sort"
	"time"
)

// 字母奖励的统计范围：a到v共22个字母
// 集齐一轮奖励一条生命并清空，可反复触发
const (
	letterRangeLow  = 'a'
	letterRangeHigh = 'v'
	letterRangeSize = 22
)

// RivalID 单人模式下AI对手的固定标识
const RivalID = "rival"

// State 引擎状态
type State string

const (
	StateAwaiting State = "awaiting" // 等待当前玩家行动
	StateEnded    State = "ended"    // 终态
)

// EndReason 游戏结束原因
type EndReason string

const (
	EndReasonWin     EndReason = "win"     // 只剩一名存活玩家
	EndReasonDefeat  EndReason = "defeat"  // 单人模式：生命耗尽
	EndReasonStopped EndReason = "stopped" // 被房主手动终止
	EndReasonFault   EndReason = "fault"   // 回合处理发生未预期错误
)

// EventKind 事件类型
type EventKind string

const (
	EventAccepted EventKind = "accepted" // 单词被接受
	EventRejected EventKind = "rejected" // 单词被拒绝
	EventTimeout  EventKind = "timeout"  // 回合超时
	EventBonus    EventKind = "bonus"    // 集齐字母奖励生命
	EventRival    EventKind = "rival"    // AI对手出词
	EventEnded    EventKind = "ended"    // 游戏结束
)

// EventEntry 滚动事件日志条目
type EventEntry struct {
	Actor    string    `json:"actor"`
	Kind     EventKind `json:"kind"`
	Word     string    `json:"word"`
	Sequence string    `json:"sequence"`
}

// Settings 游戏设置，开局后不可变
type Settings struct {
	Language string `json:"language"`
	Lives    int    `json:"lives"`     // 初始生命数
	TurnTime int    `json:"turn_time"` // 回合时限（秒）
}

// Player 参与者，仅在本局游戏内存续
type Player struct {
	ID       string
	Lives    int
	Scripted bool // AI对手
	Letters  map[rune]struct{}
	Words    int // 已接受单词数
}

// newPlayer 创建玩家
func newPlayer(id string, lives int, scripted bool) *Player {
	return &Player{
		ID:       id,
		Lives:    lives,
		Scripted: scripted,
		Letters:  make(map[rune]struct{}),
	}
}

// foldLetters 把单词中a-v范围内的字母并入玩家字母集
func (p *Player) foldLetters(word string) {
	for _, r := range word {
		if r >= letterRangeLow && r <= letterRangeHigh {
			p.Letters[r] = struct{}{}
		}
	}
}

// coverageComplete 判断字母集是否集齐
func (p *Player) coverageComplete() bool {
	return len(p.Letters) == letterRangeSize
}

// sortedLetters 返回排序后的字母列表（用于展示和持久化）
func (p *Player) sortedLetters() []string {
	letters := make([]string, 0, len(p.Letters))
	for r := range p.Letters {
		letters = append(letters, string(r))
	}
	sort.Strings(letters)
	return letters
}

// PlayerSnapshot 玩家渲染快照
type PlayerSnapshot struct {
	ID         string `json:"id"`
	Lives      int    `json:"lives"`
	Words      int    `json:"words"`
	Scripted   bool   `json:"scripted,omitempty"`
	Eliminated bool   `json:"eliminated"`
}

// Snapshot 每次状态变更后推送给展示层的渲染快照
// 核心只产出数据，消息格式化由展示层负责
type Snapshot struct {
	GuildID        string           `json:"guild_id"`
	GameID         string           `json:"game_id"`
	ChannelID      string           `json:"channel_id,omitempty"`
	State          State            `json:"state"`
	EndReason      EndReason        `json:"end_reason,omitempty"`
	Winner         string           `json:"winner,omitempty"`
	Sequence       string           `json:"sequence"`
	Players        []PlayerSnapshot `json:"players"`
	CurrentPlayer  string           `json:"current_player"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
	WordsPlayed    int              `json:"words_played"`
	Events         []EventEntry     `json:"events"`
	CurrentLetters []string         `json:"current_letters"` // 当前玩家已集字母
	TurnRetries    int              `json:"turn_retries"`    // 本回合内被拒绝的次数
	Solo           bool             `json:"solo"`
}

// RecordData 持久化记录的规范线格式
// 集合统一序列化为数组/对象，读写只经过本包的编解码边界
type RecordData struct {
	GameID       string    `json:"game_id"`
	ChannelID    string    `json:"channel_id"`
	Owner        string    `json:"owner"`
	Players      []string  `json:"players"`
	Banned       []string  `json:"banned"`
	MaxPlayers   int       `json:"max_players"`
	Settings     Settings  `json:"settings"`
	LastActivity int64     `json:"last_activity"`
	GameData     *GameData `json:"game_data,omitempty"` // 为空表示尚未开局
}

// GameData 游戏实例的可持久化字段
// 计时器、监听器等瞬态资源不持久化，恢复时重建
type GameData struct {
	Players            []string            `json:"players"` // 回合顺序
	UsedWords          []string            `json:"used_words"`
	UsedLetters        map[string][]string `json:"used_letters"`
	Lives              map[string]int      `json:"lives"`
	WordCounts         map[string]int      `json:"word_counts"`
	Logs               []EventEntry        `json:"logs"`
	SequenceHistory    []string            `json:"sequence_history"`
	CurrentSeq         string              `json:"current_seq"`
	CurrentPlayerIndex int                 `json:"current_player_index"`
	StartedAt          int64               `json:"started_at"`
	Active             bool                `json:"active"`
	Solo               bool                `json:"solo"`
	EndReason          string              `json:"end_reason,omitempty"`
}

// sanitize 修复缺失的集合字段，旧记录或损坏记录不至于让加载失败
func (d *GameData) sanitize() {
	if d.Players == nil {
		d.Players = []string{}
	}
	if d.UsedWords == nil {
		d.UsedWords = []string{}
	}
	if d.UsedLetters == nil {
		d.UsedLetters = make(map[string][]string)
	}
	if d.Lives == nil {
		d.Lives = make(map[string]int)
	}
	if d.WordCounts == nil {
		d.WordCounts = make(map[string]int)
	}
	if d.Logs == nil {
		d.Logs = []EventEntry{}
	}
	if d.SequenceHistory == nil {
		d.SequenceHistory = []string{}
	}
	if d.CurrentPlayerIndex < 0 || d.CurrentPlayerIndex >= len(d.Players) {
		d.CurrentPlayerIndex = 0
	}
}

// sanitize 修复记录级缺失字段
func (r *RecordData) sanitize() {
	if r.Players == nil {
		r.Players = []string{}
	}
	if r.Banned == nil {
		r.Banned = []string{}
	}
	if r.GameData != nil {
		r.GameData.sanitize()
	}
}

// Touch 更新活动时间戳
func (r *RecordData) Touch(now time.Time) {
	r.LastActivity = now.Unix()
}

// Clone 深拷贝记录，副本与原始记录不共享任何集合
// 对外暴露记录时必须走副本，避免调用方与引擎并发读写同一份数据
func (r *RecordData) Clone() *RecordData {
	c := *r
	c.Players = append([]string(nil), r.Players...)
	c.Banned = append([]string(nil), r.Banned...)
	if r.GameData != nil {
		c.GameData = r.GameData.clone()
	}
	return &c
}

func (d *GameData) clone() *GameData {
	c := *d
	c.Players = append([]string(nil), d.Players...)
	c.UsedWords = append([]string(nil), d.UsedWords...)
	c.UsedLetters = make(map[string][]string, len(d.UsedLetters))
	for k, v := range d.UsedLetters {
		c.UsedLetters[k] = append([]string(nil), v...)
	}
	c.Lives = make(map[string]int, len(d.Lives))
	for k, v := range d.Lives {
		c.Lives[k] = v
	}
	c.WordCounts = make(map[string]int, len(d.WordCounts))
	for k, v := range d.WordCounts {
		c.WordCounts[k] = v
	}
	c.Logs = append([]EventEntry(nil), d.Logs...)
	c.SequenceHistory = append([]string(nil), d.SequenceHistory...)
	return &c
}
