// Package debugserver 提供宿主的调试/观测 HTTP 服务。
//
// 启动方式: DEBUG_SERVER_ENABLED=true, 默认只监听 127.0.0.1。
// 提供会话清单、最近发布的转录、运行统计, 以及转录发布的 SSE 实时流,
// 便于在浏览器/curl 中观察对账行为而无需桌面前端。
package debugserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/go-agent-bridge/internal/bus"
	"github.com/agentbridge/go-agent-bridge/internal/session"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
	"github.com/agentbridge/go-agent-bridge/pkg/util"
)

// Server 调试 HTTP 服务。
type Server struct {
	router  *gin.Engine
	manager *session.Manager
	hub     *sseHub
}

// NewServer 创建调试服务并桥接发布总线到 SSE。
func NewServer(manager *session.Manager, pubBus *bus.PublishBus) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{router: r, manager: manager, hub: newSSEHub()}
	s.registerRoutes()

	sub := pubBus.Subscribe("debugserver", bus.TopicAll)
	util.SafeGo(func() {
		for msg := range sub.Ch {
			s.hub.publish(sseEvent{Type: msg.Type, Data: sseData(msg)})
		}
	})
	return s
}

// sseData 选择 SSE 载荷: 转录发布直接转发预序列化 JSON。
func sseData(msg bus.Message) any {
	if upd, ok := msg.Payload.(*session.TranscriptUpdate); ok && len(upd.Raw) > 0 {
		return gin.H{
			"sessionId":  upd.SessionID,
			"generation": upd.Generation,
			"messages":   json.RawMessage(upd.Raw),
		}
	}
	return msg.Payload
}

// Engine 返回 Gin 引擎 (测试注入)。
func (s *Server) Engine() *gin.Engine { return s.router }

// Run 阻塞运行 HTTP 服务。
func (s *Server) Run(addr string) error {
	logger.Info("debugserver: listening", logger.FieldAddr, addr)
	return s.router.Run(addr)
}

func (s *Server) registerRoutes() {
	dbg := s.router.Group("/debug")
	dbg.GET("/sessions", s.listSessions)
	dbg.GET("/transcript/:session", s.getTranscript)
	dbg.GET("/stats", s.getStats)
	dbg.GET("/events", s.sseHandler)
}

func (s *Server) listSessions(c *gin.Context) {
	success(c, s.manager.List())
}

func (s *Server) getTranscript(c *gin.Context) {
	id := c.Param("session")
	sess, err := s.manager.Get(id)
	if err != nil {
		notFound(c, fmt.Sprintf("session %s not found", id))
		return
	}
	success(c, gin.H{
		"sessionId": id,
		"messages":  sess.LastPublished(),
	})
}

func (s *Server) getStats(c *gin.Context) {
	ids := s.manager.List()
	stats := make([]session.Stats, 0, len(ids))
	for _, id := range ids {
		if sess, err := s.manager.Get(id); err == nil {
			stats = append(stats, sess.Stats())
		}
	}
	success(c, gin.H{
		"time":     time.Now(),
		"sessions": stats,
	})
}
