// Package bus 提供进程内发布总线。
//
// session actor 将对账后的转录快照发布到 transcript.{sessionID} 主题,
// 展示层消费者 (Wails 事件桥 / debug SSE) 按前缀订阅。
// 消费者只读 — 发布的载荷是深拷贝快照, 总线不做二次拷贝。
package bus

import (
	"sync"
	"time"
)

// ========================================
// 消息类型
// ========================================

// Message 总线消息。
type Message struct {
	Topic     string    `json:"topic"` // transcript.{sessionID} / session.{sessionID}.state
	Type      string    `json:"type"`  // 消息类型 (transcript / session_state / error)
	SessionID string    `json:"sessionId"`
	Payload   any       `json:"payload"` // 不可变快照, 消费者不得修改
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"` // 全局序列号
}

// 消息类型常量。
const (
	// MsgTranscript 对账后的完整转录快照。
	MsgTranscript = "transcript"
	// MsgSessionState session 生命周期状态变化 (streaming / idle / interrupted)。
	MsgSessionState = "session_state"
	// MsgError 非致命错误通知。
	MsgError = "error"
)

// Topic 模式常量。
const (
	// TopicTranscriptPrefix 转录快照主题前缀: transcript.{sessionID}。
	TopicTranscriptPrefix = "transcript."
	// TopicSessionPrefix session 状态主题前缀: session.{sessionID}。
	TopicSessionPrefix = "session."
	// TopicAll 广播 (所有订阅者收到)。
	TopicAll = "*"
)

// TranscriptTopic 构造 session 的转录主题。
func TranscriptTopic(sessionID string) string { return TopicTranscriptPrefix + sessionID }

// SessionTopic 构造 session 的状态主题。
func SessionTopic(sessionID string) string { return TopicSessionPrefix + sessionID }

// ========================================
// Subscriber
// ========================================

// Subscriber 订阅者。
type Subscriber struct {
	ID     string       // 唯一标识
	Filter string       // topic 前缀过滤 ("transcript.s1" / "*")
	Ch     chan Message // 消息通道
}

// ========================================
// PublishBus — topic pub/sub
// ========================================

// PublishBus 进程内发布总线。
//
// 支持 topic 前缀匹配和广播:
//   - 订阅 "transcript.s1" → 收到该 session 的全部转录发布
//   - 订阅 "*" → 收到所有消息
type PublishBus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber // key = subscriber ID
	seq         int64
	onPublish   func(Message) // 可选: 每条消息的全局回调 (桥接 SSE / 统计)
}

// NewPublishBus 创建发布总线。
func NewPublishBus() *PublishBus {
	return &PublishBus{
		subscribers: make(map[string]*Subscriber),
	}
}

// SetOnPublish 设置全局发布回调。
func (b *PublishBus) SetOnPublish(fn func(Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPublish = fn
}

// Publish 发布消息到匹配的订阅者。
//
// seq 递增和 fan-out 在同一把锁下执行, 保证消息到达顺序与 seq 一致。
// 订阅者通道满时该条消息对其丢弃 — 转录发布是全量快照, 下一条会补齐。
func (b *PublishBus) Publish(msg Message) {
	b.mu.Lock()
	b.seq++
	msg.Seq = b.seq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	onPub := b.onPublish

	for _, sub := range b.subscribers {
		if matchTopic(sub.Filter, msg.Topic) {
			select {
			case sub.Ch <- msg:
			default:
				// 通道满, 丢弃 (避免阻塞发布者)
			}
		}
	}
	b.mu.Unlock()

	// 全局回调在锁外执行 (回调可能耗时, 避免持锁太久)
	if onPub != nil {
		onPub(msg)
	}
}

// Subscribe 订阅消息。filter 为 topic 前缀 ("transcript.s1" / "*")。
func (b *PublishBus) Subscribe(id, filter string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:     id,
		Filter: filter,
		Ch:     make(chan Message, 64),
	}
	b.subscribers[id] = sub
	return sub
}

// Unsubscribe 取消订阅。
func (b *PublishBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount 返回当前订阅者数量。
func (b *PublishBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Seq 返回当前序列号。
func (b *PublishBus) Seq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// ========================================
// Topic 匹配
// ========================================

// matchTopic 检查 topic 是否匹配 filter。
//
// 规则:
//   - filter "*" 匹配所有 topic
//   - filter "transcript.s1" 匹配 "transcript.s1" 及 "transcript.s1.xxx"
func matchTopic(filter, topic string) bool {
	if filter == TopicAll {
		return true
	}
	if topic == filter {
		return true
	}
	// 前缀匹配: filter="transcript" 匹配 topic="transcript.s1"
	if len(topic) > len(filter) && topic[:len(filter)] == filter && topic[len(filter)] == '.' {
		return true
	}
	return false
}
