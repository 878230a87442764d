// sse.go — 发布总线到浏览器的 SSE 转发。
package debugserver

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentbridge/go-agent-bridge/pkg/logger"
)

// sseEvent SSE 事件。
type sseEvent struct {
	Type string
	Data any
}

// sseHub SSE 订阅者集合。
type sseHub struct {
	mu          sync.RWMutex
	subscribers map[string]chan sseEvent
}

func newSSEHub() *sseHub {
	return &sseHub{subscribers: make(map[string]chan sseEvent)}
}

// publish 广播事件。订阅者通道满时丢弃 — 转录发布是全量快照, 下一条补齐。
func (h *sseHub) publish(evt sseEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *sseHub) subscribe(id string) chan sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan sseEvent, 32)
	h.subscribers[id] = ch
	return ch
}

// unsubscribe 移除订阅。
//
// 不关闭 ch — sseHandler 通过 ctx.Done() 退出, GC 回收未引用的 channel。
func (h *sseHub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()
}

// sseHandler Gin SSE handler。
func (s *Server) sseHandler(c *gin.Context) {
	clientID := fmt.Sprintf("sse-%d", time.Now().UnixNano())
	ch := s.hub.subscribe(clientID)
	defer func() {
		s.hub.unsubscribe(clientID)
		logger.Info("debugserver: SSE client disconnected", "client_id", clientID)
	}()

	logger.Info("debugserver: SSE client connected", "client_id", clientID)

	c.Stream(func(w io.Writer) bool {
		// 复用 timer 避免每次循环创建新定时器 (GC 压力)
		keepalive := time.NewTimer(30 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return false
				}
				c.SSEvent(evt.Type, evt.Data)
				if !keepalive.Stop() {
					select {
					case <-keepalive.C:
					default:
					}
				}
				keepalive.Reset(30 * time.Second)
				return true
			case <-keepalive.C:
				c.SSEvent("ping", "keepalive")
				keepalive.Reset(30 * time.Second)
				return true
			case <-c.Request.Context().Done():
				return false
			}
		}
	})
}
