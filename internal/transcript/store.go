package transcript

// Store 有序消息序列, 支持整体替换与尾消息原位修改。
//
// 非并发安全: 由 session 的单写 actor 独占持有 (single-writer discipline),
// 下游只通过 CloneMessages 拿到不可变副本。
type Store struct {
	messages []Message
}

// NewStore 创建空存储。
func NewStore() *Store {
	return &Store{messages: []Message{}}
}

// Len 返回消息数量。
func (s *Store) Len() int { return len(s.messages) }

// Replace 以 snapshot 整体替换消息序列 (持有传入切片, 调用方不得再改)。
func (s *Store) Replace(msgs []Message) {
	if msgs == nil {
		msgs = []Message{}
	}
	s.messages = msgs
}

// Append 追加一条消息, 返回其索引。
func (s *Store) Append(msg Message) int {
	s.messages = append(s.messages, msg)
	return len(s.messages) - 1
}

// At 返回索引处消息的指针; 越界返回 nil。
func (s *Store) At(index int) *Message {
	if index < 0 || index >= len(s.messages) {
		return nil
	}
	return &s.messages[index]
}

// Last 返回最后一条消息的指针; 空存储返回 nil。
func (s *Store) Last() *Message {
	return s.At(len(s.messages) - 1)
}

// Patch 对索引处消息应用原位修改; 越界则 no-op。
func (s *Store) Patch(index int, fn func(*Message)) {
	if index < 0 || index >= len(s.messages) {
		return
	}
	fn(&s.messages[index])
}

// IndexByTurnToken 从尾部查找携带指定 turnToken 的消息索引, 未找到返回 -1。
//
// 从尾部查: 流式消息几乎总在尾部, snapshot 在前部插入消息不影响查找成本。
func (s *Store) IndexByTurnToken(token string) int {
	if token == "" {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].TurnToken == token {
			return i
		}
	}
	return -1
}

// LastAssistantIndex 返回最后一条 assistant 消息的索引, 无则 -1。
func (s *Store) LastAssistantIndex() int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// Snapshot 返回全量深拷贝, 供发布与序列化。
func (s *Store) Snapshot() []Message {
	return CloneMessages(s.messages)
}

// ClearStreamingFlags 清除所有消息的 streaming 标记 (中断/收尾路径)。
func (s *Store) ClearStreamingFlags() {
	for i := range s.messages {
		s.messages[i].Streaming = false
	}
}
