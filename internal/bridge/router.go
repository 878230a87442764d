// router.go — 入站事件到 session actor 的分发。
package bridge

import (
	"context"
	"encoding/json"

	"github.com/agentbridge/go-agent-bridge/internal/session"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
)

// Router 把桥接事件分发给对应 session 的 actor。
//
// 在 readLoop goroutine 上调用; 分发只做入队, 不做任何转录工作。
type Router struct {
	manager *session.Manager
}

// NewRouter 创建事件分发器。
func NewRouter(m *session.Manager) *Router {
	return &Router{manager: m}
}

// Handle 处理一条入站事件。畸形事件丢弃并计数, 绝不中断事件流。
func (r *Router) Handle(env Envelope) {
	if env.SessionID == "" {
		logger.Warn("bridge: event without session id dropped", logger.FieldEventType, env.Type)
		return
	}
	s, err := r.manager.Open(context.Background(), env.SessionID)
	if err != nil {
		logger.Warn("bridge: session open failed, event dropped",
			logger.FieldSessionID, env.SessionID,
			logger.FieldEventType, env.Type,
			logger.FieldError, err,
		)
		return
	}

	switch env.Type {
	case EventStreamStart:
		var p StreamStartPayload
		if len(env.Payload) > 0 && !r.decode(s, env, &p) {
			return
		}
		s.HandleStreamStart(p.TurnToken)

	case EventContentDelta:
		var p DeltaPayload
		if !r.decode(s, env, &p) {
			return
		}
		s.HandleContentDelta(p.Text)

	case EventThinkingDelta:
		var p DeltaPayload
		if !r.decode(s, env, &p) {
			return
		}
		s.HandleThinkingDelta(p.Text)

	case EventStreamEnd:
		s.HandleStreamEnd()

	case EventSnapshot:
		var p SnapshotPayload
		if !r.decode(s, env, &p) {
			return
		}
		s.HandleSnapshot(p.Messages)

	default:
		s.NoteMalformedEvent()
		logger.Warn("bridge: unknown event type dropped",
			logger.FieldSessionID, env.SessionID,
			logger.FieldEventType, env.Type,
		)
	}
}

// decode 解析载荷; 失败时计数并丢弃该事件。
func (r *Router) decode(s *session.Session, env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		s.NoteMalformedEvent()
		logger.Warn("bridge: malformed payload dropped",
			logger.FieldSessionID, env.SessionID,
			logger.FieldEventType, env.Type,
			logger.FieldError, err,
		)
		return false
	}
	return true
}
