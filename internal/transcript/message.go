package transcript

import (
	"time"
)

// Role 消息角色。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// Message 转录中的一条消息。顺序为到达顺序 (append-only), 永不重排。
//
// TurnToken 将消息与产生它的 in-flight turn 关联; snapshot 替换底层数组后,
// Reconciler 依然能通过 token 重新定位流式消息。
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Blocks    BlockList `json:"blocks,omitempty"`
	TurnToken string    `json:"turnToken,omitempty"`
	Streaming bool      `json:"streaming,omitempty"`
}

// Clone 深拷贝消息。
func (m Message) Clone() Message {
	out := m
	out.Blocks = CloneBlocks(m.Blocks)
	return out
}

// CloneMessages 深拷贝消息序列 (copy-on-publish 纪律: 下游只见副本)。
func CloneMessages(msgs []Message) []Message {
	if len(msgs) == 0 {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Clone()
	}
	return out
}
