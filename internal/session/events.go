// Package session 实现每会话的发布 actor: 单写者独占转录状态,
// 将增量事件流与权威快照对账为无重复、无闪烁的有序转录。
package session

import "github.com/agentbridge/go-agent-bridge/internal/transcript"

// event actor 事件信封 (封闭和类型)。全部变更经由 actor 通道串行化。
type event interface{ sessionEvent() }

// StreamStart 新 turn 开始: 递增世代并重置流式状态。
type StreamStart struct {
	// TurnToken 为空时由 session 生成。
	TurnToken string
}

// ContentDelta 活动相位的 text 增量。
type ContentDelta struct {
	Text string
}

// ThinkingDelta 活动相位的 thinking 增量。
type ThinkingDelta struct {
	Text string
}

// StreamEnd turn 结束: 最终内容无条件发布。
type StreamEnd struct{}

// SnapshotRefresh 后端持久化存储的权威快照。
type SnapshotRefresh struct {
	Messages []transcript.Message
}

// Interrupt 会话中断: 同步清空流式状态, 不走常规 flush 路径。
type Interrupt struct{}

// UserMessage 宿主侧发出的用户消息, 立即进入转录。
type UserMessage struct {
	Text   string
	Blocks transcript.BlockList
}

// serializedResult 离线序列化完成, 回到 actor 应用 Sequence Guard。
type serializedResult struct {
	generation uint64
	seq        uint64
	messages   []transcript.Message
	raw        []byte
}

func (StreamStart) sessionEvent()      {}
func (ContentDelta) sessionEvent()     {}
func (ThinkingDelta) sessionEvent()    {}
func (StreamEnd) sessionEvent()        {}
func (SnapshotRefresh) sessionEvent()  {}
func (Interrupt) sessionEvent()        {}
func (UserMessage) sessionEvent()      {}
func (serializedResult) sessionEvent() {}

// TranscriptUpdate 发布到总线的转录载荷。消费者只读。
type TranscriptUpdate struct {
	SessionID  string               `json:"sessionId"`
	Generation uint64               `json:"generation"`
	Messages   []transcript.Message `json:"messages"`
	Raw        []byte               `json:"-"` // 预序列化 JSON, 供 SSE/事件桥直接转发
}

// Stats session 运行统计 (诊断面板)。
type Stats struct {
	SessionID           string `json:"sessionId"`
	Active              bool   `json:"active"`
	Generation          uint64 `json:"generation"`
	MessageCount        int    `json:"messageCount"`
	Publishes           uint64 `json:"publishes"`
	DroppedStale        uint64 `json:"droppedStale"`
	SuppressedSnapshots uint64 `json:"suppressedSnapshots"`
	TruncatedBlocks     uint64 `json:"truncatedBlocks"`
	MalformedEvents     uint64 `json:"malformedEvents"`
}
