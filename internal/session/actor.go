// actor.go — 单写者发布 actor: 独占 Store 与 StreamState, 串行消费事件。
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentbridge/go-agent-bridge/internal/bus"
	"github.com/agentbridge/go-agent-bridge/internal/stream"
	"github.com/agentbridge/go-agent-bridge/internal/transcript"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
	"github.com/agentbridge/go-agent-bridge/pkg/util"
)

// 高频增量日志采样间隔。
const deltaLogSampleEvery uint64 = 200

// Options session 行为参数。
type Options struct {
	CoalesceInterval  time.Duration
	TruncateThreshold int
	TruncateHeadRatio float64
}

// Session 单个会话的发布 actor。
//
// 所有转录变更都发生在 run() goroutine 上 (single-writer discipline);
// 唯一的离线并发操作是传输序列化 — 对 schedule 时刻的不可变快照只读,
// 其结果回到 actor 经 Sequence Guard 校验后才发布。
type Session struct {
	ID string

	store      *transcript.Store
	state      *stream.State
	recon      *reconciler
	truncator  *transcript.Truncator
	textCo     *stream.Coalescer
	thinkingCo *stream.Coalescer
	pubBus     *bus.PublishBus

	events    chan event
	publishCh chan struct{} // 粘性发布信号 (容量 1, 满即并入在途发布)
	done      chan struct{}

	generation     uint64 // actor 独占写
	publishSeq     uint64
	lastAppliedSeq uint64
	deltaSeq       uint64

	// mu 只保护跨 goroutine 读取的诊断视图 (stats / lastPublished)。
	mu            sync.Mutex
	stats         Stats
	lastPublished []transcript.Message
	disposed      bool
}

// New 创建并启动 session actor。
func New(id string, pubBus *bus.PublishBus, opts Options) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	interval := opts.CoalesceInterval
	if interval <= 0 {
		interval = stream.DefaultCoalesceInterval
	}
	s := &Session{
		ID:        id,
		store:     transcript.NewStore(),
		state:     stream.NewState(),
		recon:     newReconciler(),
		truncator: transcript.NewTruncator(opts.TruncateThreshold, opts.TruncateHeadRatio),
		pubBus:    pubBus,
		events:    make(chan event, 256),
		publishCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.stats.SessionID = id
	// text 与 thinking 各一个 coalescer: thinking 增量的爆发不拖慢 text 可见性
	s.textCo = stream.NewCoalescer(interval, s.signalPublish)
	s.thinkingCo = stream.NewCoalescer(interval, s.signalPublish)
	util.SafeGo(s.run)
	return s
}

// signalPublish 粘性入队一个发布请求。可在 actor 栈或定时器 goroutine 上调用,
// 永不阻塞 — 通道已满说明发布已在途, 最新内容会被它带上。
func (s *Session) signalPublish() {
	select {
	case s.publishCh <- struct{}{}:
	default:
	}
}

// enqueue 投递事件到 actor; session 已销毁时静默丢弃。
func (s *Session) enqueue(ev event) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// ========================================
// 外部 API (bridge / 宿主调用, 任意 goroutine)
// ========================================

// HandleStreamStart 开始新 turn。
func (s *Session) HandleStreamStart(turnToken string) { s.enqueue(StreamStart{TurnToken: turnToken}) }

// HandleContentDelta 投递 text 增量。
func (s *Session) HandleContentDelta(text string) { s.enqueue(ContentDelta{Text: text}) }

// HandleThinkingDelta 投递 thinking 增量。
func (s *Session) HandleThinkingDelta(text string) { s.enqueue(ThinkingDelta{Text: text}) }

// HandleStreamEnd 结束 turn (flush + seal)。
func (s *Session) HandleStreamEnd() { s.enqueue(StreamEnd{}) }

// HandleSnapshot 投递权威快照刷新。
func (s *Session) HandleSnapshot(msgs []transcript.Message) {
	s.enqueue(SnapshotRefresh{Messages: msgs})
}

// HandleInterrupt 中断当前 turn。
func (s *Session) HandleInterrupt() { s.enqueue(Interrupt{}) }

// HandleUserMessage 宿主侧用户消息进入转录。
func (s *Session) HandleUserMessage(text string, blocks transcript.BlockList) {
	s.enqueue(UserMessage{Text: text, Blocks: blocks})
}

// NoteMalformedEvent 记录一条被丢弃的不可解析事件 (bridge 侧调用)。
func (s *Session) NoteMalformedEvent() {
	s.mu.Lock()
	s.stats.MalformedEvents++
	s.mu.Unlock()
}

// Dispose 销毁 session: 取消全部定时器, 之后不再调度任何工作。
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()
	close(s.done)
	s.textCo.Dispose()
	s.thinkingCo.Dispose()
}

// Stats 返回诊断统计副本。
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LastPublished 返回最近一次发布的转录 (不可变副本引用)。
func (s *Session) LastPublished() []transcript.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPublished
}

// ========================================
// actor 主循环
// ========================================

func (s *Session) run() {
	for {
		// done 优先: 销毁后即便还有积压事件也立即停机
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case <-s.done:
			return
		case <-s.publishCh:
			s.doPublish()
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev event) {
	switch e := ev.(type) {
	case StreamStart:
		s.onStreamStart(e)
	case ContentDelta:
		s.onContentDelta(e)
	case ThinkingDelta:
		s.onThinkingDelta(e)
	case StreamEnd:
		s.onStreamEnd()
	case SnapshotRefresh:
		s.onSnapshot(e)
	case Interrupt:
		s.onInterrupt()
	case UserMessage:
		s.onUserMessage(e)
	case serializedResult:
		s.onSerialized(e)
	}
}

func (s *Session) onStreamStart(e StreamStart) {
	token := e.TurnToken
	if token == "" {
		token = uuid.NewString()
	}
	s.generation++
	s.state.Begin(token, s.generation)
	s.mu.Lock()
	s.stats.Active = true
	s.stats.Generation = s.generation
	s.mu.Unlock()
	logger.Info("session: stream start",
		logger.FieldSessionID, s.ID,
		logger.FieldTurnToken, token,
		logger.FieldGeneration, s.generation,
	)
	s.publishSessionState("streaming")
}

func (s *Session) onContentDelta(e ContentDelta) {
	if !s.state.Active {
		return // turn 未开始或已结束, 状态已清
	}
	s.state.AppendText(e.Text)
	s.sampleDeltaLog("content")
	s.textCo.Signal()
}

func (s *Session) onThinkingDelta(e ThinkingDelta) {
	if !s.state.Active {
		return
	}
	s.state.AppendThinking(e.Text)
	s.sampleDeltaLog("thinking")
	s.thinkingCo.Signal()
}

// sampleDeltaLog 采样记录高频增量, 避免日志洪泛。
func (s *Session) sampleDeltaLog(kind string) {
	s.deltaSeq++
	if s.deltaSeq%deltaLogSampleEvery == 0 {
		logger.Debug("session: delta stream active",
			logger.FieldSessionID, s.ID,
			logger.FieldEventType, kind,
			logger.FieldSeq, s.deltaSeq,
		)
	}
}

func (s *Session) onStreamEnd() {
	if !s.state.Active {
		return
	}
	// 最终增量不可丢: 先物化, 再封存, 最后无条件发布
	s.materializeStreaming()
	idx := s.store.IndexByTurnToken(s.state.TurnToken)
	s.store.Patch(idx, func(m *transcript.Message) { m.Streaming = false })
	s.textCo.Cancel()
	s.thinkingCo.Cancel()
	s.state.Clear()
	s.recon.reset()
	s.mu.Lock()
	s.stats.Active = false
	s.mu.Unlock()
	logger.Info("session: stream end", logger.FieldSessionID, s.ID, logger.FieldGeneration, s.generation)
	s.doPublish()
	s.publishSessionState("idle")
}

func (s *Session) onInterrupt() {
	// 特判的 reset: 不走 flush — flush 会把 UI 已强制清除的状态重新渲染,
	// 造成旧内容闪现。定时器确定性取消, 不得在中断后触发。
	s.textCo.Cancel()
	s.thinkingCo.Cancel()
	s.state.Clear()
	s.recon.reset()
	s.store.ClearStreamingFlags()
	// 世代前移: 中断前已派发的序列化结果携带 streaming 标记,
	// 必须被 Sequence Guard 拒之门外
	s.generation++
	s.mu.Lock()
	s.stats.Active = false
	s.stats.Generation = s.generation
	s.mu.Unlock()
	logger.Info("session: interrupted", logger.FieldSessionID, s.ID, logger.FieldGeneration, s.generation)
	s.publishSessionState("interrupted")
}

func (s *Session) onSnapshot(e SnapshotRefresh) {
	if !s.recon.apply(s.store, s.state, e.Messages) {
		s.mu.Lock()
		s.stats.SuppressedSnapshots++
		s.mu.Unlock()
		return
	}
	s.doPublish()
}

func (s *Session) onUserMessage(e UserMessage) {
	s.store.Append(transcript.Message{
		Role:      transcript.RoleUser,
		Text:      e.Text,
		Timestamp: time.Now(),
		Blocks:    e.Blocks,
	})
	s.doPublish()
}

// ========================================
// 发布路径
// ========================================

// materializeStreaming 把流式相位渲染进 store 中的流式消息 (必要时追加占位)。
func (s *Session) materializeStreaming() {
	if !s.state.Active {
		return
	}
	idx := s.store.IndexByTurnToken(s.state.TurnToken)
	if idx < 0 {
		idx = s.store.Append(transcript.Message{
			Role:      transcript.RoleAssistant,
			Timestamp: time.Now(),
			TurnToken: s.state.TurnToken,
		})
	}
	s.store.Patch(idx, func(m *transcript.Message) {
		toolUses, trailing := stream.SplitStructural(m.Blocks)
		s.state.ObserveToolUseCount(len(toolUses))
		m.Blocks = s.state.RenderBlocks(toolUses, trailing)
		m.Text = s.state.CombinedText()
		m.Streaming = true
	})
}

// doPublish 物化 + 截断, 并把序列化派发给 worker; 结果回 actor 过 Sequence Guard。
func (s *Session) doPublish() {
	s.materializeStreaming()
	display := s.store.Snapshot()
	display, truncated := s.truncator.Apply(display)
	if truncated > 0 {
		s.mu.Lock()
		s.stats.TruncatedBlocks += uint64(truncated)
		s.mu.Unlock()
	}

	gen := s.generation
	s.publishSeq++
	seq := s.publishSeq

	// 序列化是唯一的离线操作: 只读 schedule 时刻的不可变快照
	util.SafeGo(func() {
		raw, err := json.Marshal(display)
		if err != nil {
			logger.Error("session: transcript marshal failed",
				logger.FieldSessionID, s.ID, logger.FieldError, err)
			return
		}
		s.enqueue(serializedResult{generation: gen, seq: seq, messages: display, raw: raw})
	})
}

// onSerialized Sequence Guard: 旧世代或被超越的序列化结果静默丢弃, 不是错误。
func (s *Session) onSerialized(r serializedResult) {
	if r.generation != s.generation || r.seq <= s.lastAppliedSeq {
		s.mu.Lock()
		s.stats.DroppedStale++
		s.mu.Unlock()
		return
	}
	s.lastAppliedSeq = r.seq

	s.mu.Lock()
	s.stats.Publishes++
	s.stats.MessageCount = len(r.messages)
	s.lastPublished = r.messages
	s.mu.Unlock()

	s.pubBus.Publish(bus.Message{
		Topic:     bus.TranscriptTopic(s.ID),
		Type:      bus.MsgTranscript,
		SessionID: s.ID,
		Payload: &TranscriptUpdate{
			SessionID:  s.ID,
			Generation: r.generation,
			Messages:   r.messages,
			Raw:        r.raw,
		},
	})
}

func (s *Session) publishSessionState(state string) {
	s.pubBus.Publish(bus.Message{
		Topic:     bus.SessionTopic(s.ID),
		Type:      bus.MsgSessionState,
		SessionID: s.ID,
		Payload:   map[string]any{"state": state, "generation": s.generation},
	})
}
