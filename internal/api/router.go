package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/word-game/internal/database"
	apperrors "github.com/wfunc/word-game/internal/errors"
	"github.com/wfunc/word-game/internal/lobby"
	"github.com/wfunc/word-game/internal/repository"
	ws "github.com/wfunc/word-game/internal/websocket"
)

// Router API路由器
type Router struct {
	engine       *gin.Engine
	lobbyHandler *LobbyHandler
	gameHandler  *GameHandler
	wsHandler    *WebSocketHandler
	wsPath       string
	log          *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(manager *lobby.Manager, hub *ws.Hub, plays repository.WordPlayRepository, wsPath string, log *zap.Logger) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	if wsPath == "" {
		wsPath = "/ws"
	}

	router := &Router{
		engine:       engine,
		lobbyHandler: NewLobbyHandler(manager, log),
		gameHandler:  NewGameHandler(manager, plays, log),
		wsHandler:    NewWebSocketHandler(hub, log),
		wsPath:       wsPath,
		log:          log,
	}

	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// WebSocket连接
	r.engine.GET(r.wsPath, r.wsHandler.GameWebSocket)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		guilds := v1.Group("/guilds/:guild_id")
		{
			lobbies := guilds.Group("/lobbies")
			{
				lobbies.POST("", r.lobbyHandler.Create)
				lobbies.GET("", r.lobbyHandler.List)
				lobbies.GET("/:game_id", r.lobbyHandler.Get)
				lobbies.DELETE("/:game_id", r.lobbyHandler.Cancel)
				lobbies.POST("/:game_id/join", r.lobbyHandler.Join)
				lobbies.POST("/:game_id/leave", r.lobbyHandler.Leave)
				lobbies.POST("/:game_id/ban", r.lobbyHandler.Ban)
				lobbies.POST("/:game_id/transfer", r.lobbyHandler.TransferOwnership)
				lobbies.PUT("/:game_id/settings", r.lobbyHandler.UpdateSettings)
				lobbies.POST("/:game_id/start", r.lobbyHandler.Start)

				lobbies.GET("/:game_id/game", r.gameHandler.Snapshot)
				lobbies.POST("/:game_id/words", r.gameHandler.SubmitWord)
				lobbies.POST("/:game_id/stop", r.gameHandler.Stop)
			}
		}

		players := v1.Group("/players")
		{
			players.GET("/:player_id/plays", r.gameHandler.PlayerPlays)
		}
	}
}

// healthCheck 健康检查，数据库启用时一并探测连通性
func (r *Router) healthCheck(c *gin.Context) {
	if database.GetDB() != nil {
		if err := database.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
				"time":   time.Now().Unix(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Engine 返回gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// respondError 把领域错误转换为HTTP错误响应
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, c.GetHeader("X-Request-ID")))
}

// respondOK 成功响应
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
