package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/word-game/internal/game"
)

// GameCommander 游戏指令接口，由大厅管理器实现
type GameCommander interface {
	SubmitWord(ctx context.Context, guildID, gameID, playerID, word string) error
	Stop(ctx context.Context, guildID, gameID, actorID string) error
	GameSnapshot(guildID, gameID string) (*game.Snapshot, error)
}

// Hub WebSocket连接管理中心
//
// 客户端按 服务器ID/游戏ID 订阅游戏，引擎推送的快照
// 只投递给对应游戏的订阅者。消息格式化在这一层完成，
// 游戏核心只产出快照数据。
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 游戏订阅：服务器ID/游戏ID -> 客户端列表
	watchers map[string][]*Client
	watchMu  sync.RWMutex

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	commander GameCommander
	logger    *zap.Logger
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	GuildID   string          `json:"guild_id,omitempty"`
	GameID    string          `json:"game_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected  = "connected"
	MessageTypeSubscribed = "subscribed"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeError      = "error"

	// 游戏消息
	MessageTypeSnapshot   = "snapshot"
	MessageTypeSubmitWord = "submit_word"
	MessageTypeStopGame   = "stop_game"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		watchers:   make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetCommander 注入游戏指令处理器，需在接受连接前调用
func (h *Hub) SetCommander(commander GameCommander) {
	h.commander = commander
}

// Run 运行Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Register 把客户端交给Hub托管
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID))

	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.sendToClient(client, msg)
}

// unregisterClient 注销客户端并清理订阅
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.unwatch(client)

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID))
}

// watch 订阅某局游戏
func (h *Hub) watch(client *Client, guildID, gameID string) {
	h.unwatch(client)

	key := gameKey(guildID, gameID)
	h.watchMu.Lock()
	h.watchers[key] = append(h.watchers[key], client)
	h.watchMu.Unlock()

	client.GuildID = guildID
	client.GameID = gameID
}

// unwatch 取消客户端当前的订阅
func (h *Hub) unwatch(client *Client) {
	if client.GameID == "" {
		return
	}
	key := gameKey(client.GuildID, client.GameID)

	h.watchMu.Lock()
	watchers := h.watchers[key]
	for i, c := range watchers {
		if c.ID == client.ID {
			h.watchers[key] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(h.watchers[key]) == 0 {
		delete(h.watchers, key)
	}
	h.watchMu.Unlock()
}

// PublishSnapshot 把渲染快照投递给该游戏的全部订阅者
// 实现引擎的通知接口，无订阅者时静默丢弃
func (h *Hub) PublishSnapshot(snapshot *game.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	msg := &Message{
		Type:      MessageTypeSnapshot,
		GuildID:   snapshot.GuildID,
		GameID:    snapshot.GameID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := gameKey(snapshot.GuildID, snapshot.GameID)
	h.watchMu.RLock()
	watchers := h.watchers[key]
	h.watchMu.RUnlock()

	for _, client := range watchers {
		select {
		case client.Send <- payload:
		default:
			// 发送缓冲区满，丢弃本条快照
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID))
		}
	}
	return nil
}

// sendToClient 发送消息给指定客户端
func (h *Hub) sendToClient(client *Client, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}
	select {
	case client.Send <- data:
	default:
		h.logger.Warn("客户端发送缓冲区满",
			zap.String("client_id", client.ID))
	}
}

func gameKey(guildID, gameID string) string {
	return guildID + "/" + gameID
}
