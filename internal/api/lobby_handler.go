package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/game"
	"github.com/wfunc/word-game/internal/lobby"
)

// LobbyHandler 大厅处理器
type LobbyHandler struct {
	manager *lobby.Manager
	log     *zap.Logger
}

// NewLobbyHandler 创建大厅处理器
func NewLobbyHandler(manager *lobby.Manager, log *zap.Logger) *LobbyHandler {
	return &LobbyHandler{manager: manager, log: log}
}

// CreateRequest 创建大厅请求
type CreateRequest struct {
	ChannelID  string `json:"channel_id"`
	OwnerID    string `json:"owner_id" binding:"required"`
	Language   string `json:"language"`
	MaxPlayers int    `json:"max_players"`
	Solo       bool   `json:"solo"`
}

// Create 创建大厅；solo为真时创建并立即开始单人游戏
func (h *LobbyHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}

	opts := lobby.CreateOptions{
		GuildID:    c.Param("guild_id"),
		ChannelID:  req.ChannelID,
		OwnerID:    req.OwnerID,
		Language:   req.Language,
		MaxPlayers: req.MaxPlayers,
	}

	var record *game.RecordData
	var err error
	if req.Solo {
		record, err = h.manager.CreateSolo(c.Request.Context(), opts)
	} else {
		record, err = h.manager.Create(c.Request.Context(), opts)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, record)
}

// List 列出服务器的全部大厅
func (h *LobbyHandler) List(c *gin.Context) {
	respondOK(c, h.manager.List(c.Param("guild_id")))
}

// Get 查询单个大厅
func (h *LobbyHandler) Get(c *gin.Context) {
	record, err := h.manager.Lobby(c.Param("guild_id"), c.Param("game_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, record)
}

// playerRequest 携带玩家ID的请求体
type playerRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
}

// Join 加入大厅
func (h *LobbyHandler) Join(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	if err := h.manager.Join(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.PlayerID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// Leave 离开大厅
func (h *LobbyHandler) Leave(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	if err := h.manager.Leave(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.PlayerID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// BanRequest 封禁请求
type BanRequest struct {
	ActorID  string `json:"actor_id" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
}

// Ban 封禁玩家
func (h *LobbyHandler) Ban(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	if err := h.manager.Ban(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.ActorID, req.TargetID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// TransferRequest 所有权移交请求
type TransferRequest struct {
	ActorID  string `json:"actor_id" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
}

// TransferOwnership 移交大厅所有权
func (h *LobbyHandler) TransferOwnership(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	if err := h.manager.TransferOwnership(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.ActorID, req.TargetID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// SettingsRequest 设置修改请求
type SettingsRequest struct {
	ActorID  string `json:"actor_id" binding:"required"`
	Language string `json:"language"`
	Lives    int    `json:"lives" binding:"required"`
	TurnTime int    `json:"turn_time" binding:"required"`
}

// UpdateSettings 修改游戏设置
func (h *LobbyHandler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	settings := game.Settings{
		Language: req.Language,
		Lives:    req.Lives,
		TurnTime: req.TurnTime,
	}
	if err := h.manager.UpdateSettings(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.ActorID, settings); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// actorRequest 携带执行者ID的请求体
type actorRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
}

// Start 开始游戏
func (h *LobbyHandler) Start(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	if err := h.manager.Start(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.ActorID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// Cancel 取消未开局的大厅，执行者通过查询参数传递
func (h *LobbyHandler) Cancel(c *gin.Context) {
	actorID := c.Query("actor_id")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.New(apperrors.ErrInvalidParam, "缺少执行者ID"), ""))
		return
	}
	if err := h.manager.Cancel(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), actorID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
