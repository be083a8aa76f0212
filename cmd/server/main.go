package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/word-game/internal/api"
	"github.com/wfunc/word-game/internal/config"
	"github.com/wfunc/word-game/internal/database"
	"github.com/wfunc/word-game/internal/game"
	"github.com/wfunc/word-game/internal/lexicon"
	"github.com/wfunc/word-game/internal/lobby"
	"github.com/wfunc/word-game/internal/logger"
	"github.com/wfunc/word-game/internal/repository"
	ws "github.com/wfunc/word-game/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("word-game %s (build: %s, commit: %s)\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()
	log := logger.GetLogger()

	log.Info("正在启动单词游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", cfg.Server.Mode))

	if err := run(cfg, log); err != nil {
		log.Fatal("服务器运行失败", zap.Error(err))
	}
	log.Info("服务器已安全关闭")
}

func run(cfg *config.Config, log *zap.Logger) error {
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return err
		}
	}

	db := database.GetDB()
	lobbyRepo := repository.NewLobbyRecordRepository(db)
	playRepo := repository.NewWordPlayRepository(db)

	// 预加载配置的词库
	lexicons := lexicon.NewManager(cfg.Game.DictDir)
	for _, language := range cfg.Game.Languages {
		if _, err := lexicons.Get(language); err != nil {
			log.Warn("预加载词库失败",
				zap.String("language", language),
				zap.Error(err))
		}
	}

	persister := game.NewDatabaseStatePersister(lobbyRepo, log)
	recorder := game.NewDatabasePlayRecorder(playRepo)

	// 大厅管理器与展示层互相引用，先建Hub再注入指令处理器
	hub := ws.NewHub(log)
	manager := lobby.NewManager(&cfg.Game, lexicons, persister, hub, recorder, log)
	hub.SetCommander(manager)
	go hub.Run()

	// 启动恢复：重建大厅，进行中的游戏以新计时器继续
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recovery := game.NewRecoveryManager(persister, lexicons, log)
	if err := manager.Restore(ctx, recovery); err != nil {
		return err
	}

	// 闲置大厅回收
	go manager.RunSweeper(ctx)

	// HTTP服务
	router := api.NewRouter(manager, hub, playRepo, cfg.WebSocket.Path, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("收到退出信号", zap.String("signal", sig.String()))
	}

	// 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP服务关闭失败", zap.Error(err))
	}
	// 进行中的游戏已随每次状态变更落盘，重启后自动恢复
	return nil
}
