package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/word-game/internal/errors"
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 4 * 1024
)

// Client WebSocket客户端
type Client struct {
	ID       string          // 客户端ID
	PlayerID string          // 玩家ID
	GuildID  string          // 订阅的服务器ID
	GameID   string          // 订阅的游戏ID
	Hub      *Hub            // Hub引用
	Conn     *websocket.Conn // WebSocket连接
	Send     chan []byte     // 发送通道
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, playerID string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
	}
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 批量发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Hub.logger.Error("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError(apperrors.ErrInvalidParam, "消息格式错误")
		// 断开发送无效JSON的连接
		c.Close()
		return
	}

	switch msg.Type {
	case MessageTypePong:
		c.Hub.logger.Debug("收到pong", zap.String("client_id", c.ID))

	case MessageTypeSubscribed:
		c.handleSubscribe(&msg)

	case MessageTypeSubmitWord:
		c.handleSubmitWord(&msg)

	case MessageTypeStopGame:
		c.handleStop(&msg)

	default:
		c.Hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError(apperrors.ErrInvalidParam, "不支持的消息类型: "+msg.Type)
	}
}

// handleSubscribe 订阅游戏并回发当前快照
func (c *Client) handleSubscribe(msg *Message) {
	if msg.GuildID == "" || msg.GameID == "" {
		c.sendError(apperrors.ErrInvalidParam, "缺少服务器ID或游戏ID")
		return
	}
	c.Hub.watch(c, msg.GuildID, msg.GameID)

	snapshot, err := c.Hub.commander.GameSnapshot(msg.GuildID, msg.GameID)
	if err != nil {
		// 大厅还未开局时订阅同样有效，只是暂无快照
		c.SendMessage(MessageTypeSubscribed, map[string]string{"game_id": msg.GameID})
		return
	}
	c.SendMessage(MessageTypeSnapshot, snapshot)
}

// handleSubmitWord 提交单词
func (c *Client) handleSubmitWord(msg *Message) {
	var payload struct {
		Word string `json:"word"`
	}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError(apperrors.ErrInvalidParam, "消息格式错误")
			return
		}
	}
	if payload.Word == "" {
		c.sendError(apperrors.ErrInvalidParam, "单词不能为空")
		return
	}

	err := c.Hub.commander.SubmitWord(context.Background(), msg.GuildID, msg.GameID, c.PlayerID, payload.Word)
	if err != nil {
		// 领域拒绝原样回给玩家，快照由引擎广播
		c.sendError(apperrors.GetCode(err), err.Error())
	}
}

// handleStop 终止游戏
func (c *Client) handleStop(msg *Message) {
	err := c.Hub.commander.Stop(context.Background(), msg.GuildID, msg.GameID, c.PlayerID)
	if err != nil {
		c.sendError(apperrors.GetCode(err), err.Error())
	}
}

// sendError 发送错误消息
func (c *Client) sendError(code apperrors.ErrorCode, message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"code":  code,
		"error": message,
	})
	msg := &Message{
		Type:      MessageTypeError,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
	c.Hub.sendToClient(c, msg)
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msgType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg := &Message{
		Type:      msgType,
		GuildID:   c.GuildID,
		GameID:    c.GameID,
		Data:      jsonData,
		Timestamp: time.Now().Unix(),
	}
	c.Hub.sendToClient(c, msg)
	return nil
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.Hub.unregister <- c
}
