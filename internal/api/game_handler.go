package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/lobby"
	"github.com/wfunc/word-game/internal/repository"
)

// GameHandler 游戏处理器
type GameHandler struct {
	manager *lobby.Manager
	plays   repository.WordPlayRepository
	log     *zap.Logger
}

// NewGameHandler 创建游戏处理器
func NewGameHandler(manager *lobby.Manager, plays repository.WordPlayRepository, log *zap.Logger) *GameHandler {
	return &GameHandler{manager: manager, plays: plays, log: log}
}

// Snapshot 查询进行中游戏的渲染快照
func (h *GameHandler) Snapshot(c *gin.Context) {
	snapshot, err := h.manager.GameSnapshot(c.Param("guild_id"), c.Param("game_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, snapshot)
}

// SubmitWordRequest 提交单词请求
type SubmitWordRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Word     string `json:"word" binding:"required"`
}

// SubmitWord 提交单词，拒绝原因随错误响应返回
func (h *GameHandler) SubmitWord(c *gin.Context) {
	var req SubmitWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	err := h.manager.SubmitWord(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.PlayerID, req.Word)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// Stop 终止进行中的游戏
func (h *GameHandler) Stop(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.NewErrorResponse(
			apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"), ""))
		return
	}
	if err := h.manager.Stop(c.Request.Context(), c.Param("guild_id"), c.Param("game_id"), req.ActorID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// PlayerPlays 查询玩家最近的出词记录
func (h *GameHandler) PlayerPlays(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	plays, err := h.plays.FindByPlayer(c.Request.Context(), c.Param("player_id"), limit)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询出词记录失败"))
		return
	}
	respondOK(c, plays)
}
