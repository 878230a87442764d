// cmd/agent-host — Wails v3 桌面宿主。
//
// 架构:
//   - bridge 拉起后端 agent 进程并消费其 WebSocket 事件流
//   - session actor 把增量流与数据库快照对账为稳定转录
//   - 对账结果经发布总线推到 Wails 事件 + 调试 SSE
//
// 构建:
//
//	go build -tags "production" -o agent-host ./cmd/agent-host/
package main

import (
	"bufio"
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/agentbridge/go-agent-bridge/internal/bridge"
	"github.com/agentbridge/go-agent-bridge/internal/bus"
	"github.com/agentbridge/go-agent-bridge/internal/config"
	"github.com/agentbridge/go-agent-bridge/internal/database"
	"github.com/agentbridge/go-agent-bridge/internal/debugserver"
	"github.com/agentbridge/go-agent-bridge/internal/session"
	"github.com/agentbridge/go-agent-bridge/internal/store"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
	"github.com/agentbridge/go-agent-bridge/pkg/util"
)

//go:embed frontend/dist/*
var assets embed.FS

// frontendAssets 返回前端静态资源 FS, 去掉 "frontend/dist" 前缀。
func frontendAssets() http.FileSystem {
	sub, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		logger.Error("embed: failed to sub frontend/dist", logger.FieldError, err)
		return http.FS(assets)
	}
	return http.FS(sub)
}

// loadEnvFile 从当前目录向上搜索 .env 文件并加载到环境变量。
// 不覆盖已有的环境变量 — 只填充未设置的。
func loadEnvFile() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for range 5 {
		envPath := filepath.Join(dir, ".env")
		f, err := os.Open(envPath)
		if err == nil {
			scanner := bufio.NewScanner(f)
			count := 0
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				parts := strings.SplitN(line, "=", 2)
				if len(parts) != 2 {
					continue
				}
				key := strings.TrimSpace(parts[0])
				val := strings.TrimSpace(parts[1])
				if _, exists := os.LookupEnv(key); !exists {
					if err := os.Setenv(key, val); err != nil {
						logger.Warn("loadEnvFile: setenv failed", "key", key, logger.FieldError, err)
						continue
					}
					count++
				}
			}
			_ = f.Close()
			logger.Info("loaded .env file", logger.FieldPath, envPath, logger.FieldCount, count)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}

// setupDatabase 创建只读快照连接池; 未配置时返回 nil (无历史水合)。
func setupDatabase(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	if cfg.PostgresConnStr == "" {
		logger.Info("postgres not configured, history hydration disabled")
		return nil
	}
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		logger.Warn("postgres unavailable, history hydration disabled", logger.FieldError, err)
		return nil
	}
	return pool
}

func main() {
	loadEnvFile()
	cfg := config.Load()
	logger.Init(cfg.AppEnv)
	if err := logger.InitWithFile(cfg.LogDir); err != nil {
		logger.Warn("file logging unavailable", logger.FieldError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── 数据库 (快照来源, 可选) ───
	pool := setupDatabase(ctx, cfg)
	var history session.HistoryLoader
	if pool != nil {
		history = store.NewMessageStore(pool, cfg.HistoryLoadLimit)
	}

	// ─── 发布总线 + session 管理 ───
	pubBus := bus.NewPublishBus()
	manager := session.NewManager(pubBus, history, session.Options{
		CoalesceInterval:  time.Duration(cfg.CoalesceIntervalMS) * time.Millisecond,
		TruncateThreshold: cfg.TruncateThreshold,
		TruncateHeadRatio: cfg.TruncateHeadRatio,
	})

	// ─── 后端进程桥 ───
	client := bridge.NewClient(bridge.Config{
		Port:                cfg.BridgePort,
		Command:             strings.Fields(cfg.BridgeCommand),
		StartupTimeout:      time.Duration(cfg.BridgeStartupTimeoutSec) * time.Second,
		ReadIdleTimeout:     time.Duration(cfg.BridgeReadIdleSec) * time.Second,
		ReconnectMaxRetries: cfg.BridgeReconnectMax,
		StdoutLimitBytes:    cfg.BridgeStdoutLimitBytes,
	})
	client.SetHandler(bridge.NewRouter(manager).Handle)
	client.SetOnReconnect(func() {
		// 断线期间丢失的事件靠权威快照重同步
		for _, id := range manager.List() {
			if err := client.RequestSnapshot(id); err != nil {
				logger.Warn("resync snapshot request failed",
					logger.FieldSessionID, id, logger.FieldError, err)
			}
		}
	})
	util.SafeGo(func() {
		spawnCtx, spawnCancel := context.WithTimeout(ctx, time.Duration(cfg.BridgeStartupTimeoutSec)*time.Second)
		defer spawnCancel()
		if err := client.Spawn(spawnCtx); err != nil {
			logger.Error("backend spawn failed", logger.FieldError, err)
			return
		}
		if err := client.Connect(); err != nil {
			logger.Error("backend connect failed", logger.FieldError, err)
		}
	})

	// ─── 调试 HTTP ───
	if cfg.DebugServerEnabled {
		dbg := debugserver.NewServer(manager, pubBus)
		util.SafeGo(func() {
			if err := dbg.Run(cfg.DebugServerAddr); err != nil {
				logger.Error("debugserver exited", logger.FieldError, err)
			}
		})
	}

	// ─── Wails App ───
	appSvc := NewApp(manager, client)
	app := application.New(application.Options{
		Name: "Agent Bridge",
		Assets: application.AssetOptions{
			Handler: http.FileServer(frontendAssets()),
		},
		Services: []application.Service{
			application.NewService(appSvc),
		},
		Mac: application.MacOptions{
			ApplicationShouldTerminateAfterLastWindowClosed: true,
		},
		OnShutdown: func() {
			cancel()
			appSvc.shutdown()
			if err := client.Shutdown(); err != nil {
				logger.Warn("backend shutdown", logger.FieldError, err)
			}
			manager.DisposeAll()
			logger.ShutdownFileHandler()
			if pool != nil {
				pool.Close()
			}
		},
	})
	appSvc.wailsApp = app
	appSvc.startPublishForwarder(pubBus)

	app.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:           "Agent Bridge",
		Width:           1280,
		Height:          860,
		MinWidth:        800,
		MinHeight:       600,
		InitialPosition: application.WindowCentered,
		BackgroundColour: application.RGBA{
			Red: 12, Green: 16, Blue: 23, Alpha: 255,
		},
		Mac: application.MacWindow{
			TitleBar: application.MacTitleBarDefault,
		},
	})

	if err := app.Run(); err != nil {
		logger.Fatal("wails app exited", logger.FieldError, err)
	}
}
