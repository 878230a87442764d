package session

import (
	"context"
	"sync"

	"github.com/agentbridge/go-agent-bridge/internal/bus"
	"github.com/agentbridge/go-agent-bridge/internal/transcript"
	"github.com/agentbridge/go-agent-bridge/pkg/errors"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
)

// HistoryLoader 会话打开时加载历史转录 (通常由数据库 reader 实现)。
type HistoryLoader interface {
	LoadHistory(ctx context.Context, sessionID string) ([]transcript.Message, error)
}

// Manager 管理全部会话 actor 的生命周期。
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	pubBus   *bus.PublishBus
	history  HistoryLoader
	opts     Options
	disposed bool
}

// NewManager 创建 session 管理器。history 可为 nil (不加载历史)。
func NewManager(pubBus *bus.PublishBus, history HistoryLoader, opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		pubBus:   pubBus,
		history:  history,
		opts:     opts,
	}
}

// Open 返回已有会话或创建新会话; 新会话会先用历史转录做一次快照刷新。
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, errors.Wrap(errors.ErrSessionDisposed, "session", "manager disposed")
	}
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s := New(id, m.pubBus, m.opts)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.history != nil {
		msgs, err := m.history.LoadHistory(ctx, s.ID)
		if err != nil {
			// 历史不可用不阻塞会话: 空转录起步, 留日志定位
			logger.Warn("session: history load failed",
				logger.FieldSessionID, s.ID, logger.FieldError, err)
		} else if len(msgs) > 0 {
			s.HandleSnapshot(msgs)
		}
	}
	logger.Info("session: opened", logger.FieldSessionID, s.ID)
	return s, nil
}

// Get 返回已存在的会话。
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "session", "session %s not found", id)
	}
	return s, nil
}

// List 返回全部会话 ID。
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Dispose 销毁单个会话。
func (m *Manager) Dispose(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.Dispose()
		logger.Info("session: disposed", logger.FieldSessionID, id)
	}
}

// DisposeAll 销毁全部会话 (宿主退出路径)。
func (m *Manager) DisposeAll() {
	m.mu.Lock()
	m.disposed = true
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Dispose()
	}
}
