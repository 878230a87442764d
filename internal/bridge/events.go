// Package bridge 管理 agent 后端子进程与其 WebSocket 事件流。
//
// 后端通过 WebSocket 推送带类型标签的 JSON 事件:
//   - stream-start / content-delta / thinking-delta / stream-end: 增量流
//   - snapshot: 持久化存储的权威快照
//
// 宿主通过同一连接下发 user-input / interrupt / snapshot-request。
package bridge

import (
	"encoding/json"

	"github.com/agentbridge/go-agent-bridge/internal/transcript"
	apperrors "github.com/agentbridge/go-agent-bridge/pkg/errors"
)

// 入站事件类型。
const (
	EventStreamStart   = "stream-start"
	EventContentDelta  = "content-delta"
	EventThinkingDelta = "thinking-delta"
	EventStreamEnd     = "stream-end"
	EventSnapshot      = "snapshot"
)

// 出站命令类型。
const (
	CmdUserInput       = "user-input"
	CmdInterrupt       = "interrupt"
	CmdSnapshotRequest = "snapshot-request"
)

// Envelope 事件信封 (入站与出站共用)。
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Handler 入站事件回调, 在 readLoop goroutine 上调用。
type Handler func(Envelope)

// StreamStartPayload stream-start 载荷。
type StreamStartPayload struct {
	TurnToken string `json:"turnToken,omitempty"`
}

// DeltaPayload content-delta / thinking-delta 载荷。
type DeltaPayload struct {
	Text string `json:"text"`
}

// SnapshotPayload snapshot 载荷。
type SnapshotPayload struct {
	Messages []transcript.Message `json:"messages"`
}

// UserInputPayload user-input 载荷。
type UserInputPayload struct {
	Text string `json:"text"`
}

// DecodeEnvelope 解析一条入站事件。type 缺失视为不可解析。
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, apperrors.Wrap(apperrors.ErrMalformedEvent, "bridge.DecodeEnvelope", err.Error())
	}
	if env.Type == "" {
		return Envelope{}, apperrors.Wrap(apperrors.ErrMalformedEvent, "bridge.DecodeEnvelope", "event without type")
	}
	return env, nil
}
