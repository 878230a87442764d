// app.go — Wails 绑定: 会话操作 + 转录事件推送。
//
// 前端通过 window.go.main.App.XXX() 调用;
// 转录更新经 Wails 事件 "transcript" 推送 (预序列化 JSON 直接转发)。
package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/agentbridge/go-agent-bridge/internal/bridge"
	"github.com/agentbridge/go-agent-bridge/internal/bus"
	"github.com/agentbridge/go-agent-bridge/internal/session"
	"github.com/agentbridge/go-agent-bridge/internal/transcript"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
	"github.com/agentbridge/go-agent-bridge/pkg/util"
)

const emitSampleEvery int64 = 120

// App Wails 绑定 — 前端通过 window.go.main.App.XXX() 调用。
type App struct {
	manager  *session.Manager
	client   *bridge.Client
	wailsApp *application.App

	emitSeq atomic.Int64
}

// NewApp 创建 App 实例。
func NewApp(manager *session.Manager, client *bridge.Client) *App {
	return &App{manager: manager, client: client}
}

// ServiceStartup Wails v3 Service 生命周期: 应用启动时调用。
func (a *App) ServiceStartup(_ context.Context, _ application.ServiceOptions) error {
	return nil
}

func (a *App) shutdown() {
	done := make(chan struct{})
	util.SafeGo(func() {
		a.manager.DisposeAll()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

// ========================================
// 前端绑定方法
// ========================================

// SendMessage 提交用户输入: 本地立即上屏, 同时转发给后端。
func (a *App) SendMessage(sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s, err := a.manager.Open(context.Background(), sessionID)
	if err != nil {
		return err
	}
	s.HandleUserMessage(text, nil)
	return a.client.SendUserInput(sessionID, text)
}

// Interrupt 中断会话当前 turn: 本地同步清流, 并通知后端。
func (a *App) Interrupt(sessionID string) error {
	s, err := a.manager.Get(sessionID)
	if err != nil {
		return err
	}
	s.HandleInterrupt()
	return a.client.SendInterrupt(sessionID)
}

// ListSessions 返回全部会话 ID。
func (a *App) ListSessions() []string {
	return a.manager.List()
}

// GetTranscript 返回会话最近一次发布的转录。
func (a *App) GetTranscript(sessionID string) ([]transcript.Message, error) {
	s, err := a.manager.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.LastPublished(), nil
}

// GetStats 返回会话运行统计。
func (a *App) GetStats(sessionID string) (session.Stats, error) {
	s, err := a.manager.Get(sessionID)
	if err != nil {
		return session.Stats{}, err
	}
	return s.Stats(), nil
}

// ========================================
// 发布总线 → Wails 事件
// ========================================

// startPublishForwarder 把总线发布转为 Wails 前端事件。
func (a *App) startPublishForwarder(pubBus *bus.PublishBus) {
	sub := pubBus.Subscribe("wails-emitter", bus.TopicAll)
	util.SafeGo(func() {
		for msg := range sub.Ch {
			a.emitBusMessage(msg)
		}
	})
}

func (a *App) emitBusMessage(msg bus.Message) {
	if a.wailsApp == nil {
		return
	}
	switch msg.Type {
	case bus.MsgTranscript:
		upd, ok := msg.Payload.(*session.TranscriptUpdate)
		if !ok {
			return
		}
		a.wailsApp.Event.Emit("transcript", map[string]any{
			"sessionId":  upd.SessionID,
			"generation": upd.Generation,
			"messages":   json.RawMessage(upd.Raw),
		})
		seq := a.emitSeq.Add(1)
		// 高频转录推送采样记录
		if seq%emitSampleEvery == 0 {
			logger.Debug("wails: transcript emitted",
				logger.FieldSessionID, upd.SessionID,
				logger.FieldSeq, seq,
				logger.FieldCount, len(upd.Messages),
			)
		}
	case bus.MsgSessionState:
		a.wailsApp.Event.Emit("session-state", map[string]any{
			"sessionId": msg.SessionID,
			"state":     msg.Payload,
		})
	case bus.MsgError:
		a.wailsApp.Event.Emit("session-error", map[string]any{
			"sessionId": msg.SessionID,
			"error":     msg.Payload,
		})
	}
}
