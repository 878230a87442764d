// Package transcript 定义会话转录的数据模型: 消息、内容块与存储。
//
// ContentBlock 为封闭和类型 (closed sum type): text / thinking / tool_use /
// tool_result / image 五种变体, 跨进程边界以 "type" 判别字段序列化。
package transcript

import (
	"encoding/json"

	pkgerr "github.com/agentbridge/go-agent-bridge/pkg/errors"
)

// BlockKind 内容块判别值。
type BlockKind string

const (
	BlockKindText       BlockKind = "text"
	BlockKindThinking   BlockKind = "thinking"
	BlockKindToolUse    BlockKind = "tool_use"
	BlockKindToolResult BlockKind = "tool_result"
	BlockKindImage      BlockKind = "image"
)

// ContentBlock 单个渲染单元。实现类型穷尽于本包。
type ContentBlock interface {
	Kind() BlockKind
	contentBlock()
}

// TextBlock 普通文本内容。
type TextBlock struct {
	Content string `json:"content"`
}

func (*TextBlock) Kind() BlockKind { return BlockKindText }
func (*TextBlock) contentBlock()   {}

// ThinkingBlock 推理 (thinking) 内容。
type ThinkingBlock struct {
	Content string `json:"content"`
}

func (*ThinkingBlock) Kind() BlockKind { return BlockKindThinking }
func (*ThinkingBlock) contentBlock()   {}

// ToolUseBlock 工具调用。ID 一经产生即稳定, 用于与后续 ToolResult 配对。
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

func (*ToolUseBlock) Kind() BlockKind { return BlockKindToolUse }
func (*ToolUseBlock) contentBlock()   {}

// ToolResultBlock 工具结果, 通过 ToolUseID 与另一条消息中的 ToolUse 配对。
type ToolResultBlock struct {
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (*ToolResultBlock) Kind() BlockKind { return BlockKindToolResult }
func (*ToolResultBlock) contentBlock()   {}

// ImageBlock 图片引用 (路径 / URL / data URI)。
type ImageBlock struct {
	SourceRef string `json:"sourceRef"`
}

func (*ImageBlock) Kind() BlockKind { return BlockKindImage }
func (*ImageBlock) contentBlock()   {}

// ========================================
// BlockList — 判别序列化
// ========================================

// BlockList 内容块序列, 以 {"type": ..., ...} 信封编解码。
type BlockList []ContentBlock

type blockEnvelope struct {
	Type BlockKind `json:"type"`

	// text / thinking
	Content string `json:"content,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"toolUseId,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	// image
	SourceRef string `json:"sourceRef,omitempty"`
}

// MarshalJSON 输出带 type 判别字段的块数组。
func (l BlockList) MarshalJSON() ([]byte, error) {
	out := make([]blockEnvelope, 0, len(l))
	for _, b := range l {
		switch v := b.(type) {
		case *TextBlock:
			out = append(out, blockEnvelope{Type: BlockKindText, Content: v.Content})
		case *ThinkingBlock:
			out = append(out, blockEnvelope{Type: BlockKindThinking, Content: v.Content})
		case *ToolUseBlock:
			out = append(out, blockEnvelope{Type: BlockKindToolUse, ID: v.ID, Name: v.Name, Input: v.Input})
		case *ToolResultBlock:
			out = append(out, blockEnvelope{Type: BlockKindToolResult, ToolUseID: v.ToolUseID, Content: v.Content, Truncated: v.Truncated})
		case *ImageBlock:
			out = append(out, blockEnvelope{Type: BlockKindImage, SourceRef: v.SourceRef})
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON 按 type 判别字段还原块数组。未知类型跳过 (向前兼容)。
func (l *BlockList) UnmarshalJSON(data []byte) error {
	var envelopes []blockEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return pkgerr.Wrap(err, "BlockList.Unmarshal", "decode block array")
	}
	blocks := make(BlockList, 0, len(envelopes))
	for _, e := range envelopes {
		switch e.Type {
		case BlockKindText:
			blocks = append(blocks, &TextBlock{Content: e.Content})
		case BlockKindThinking:
			blocks = append(blocks, &ThinkingBlock{Content: e.Content})
		case BlockKindToolUse:
			blocks = append(blocks, &ToolUseBlock{ID: e.ID, Name: e.Name, Input: e.Input})
		case BlockKindToolResult:
			blocks = append(blocks, &ToolResultBlock{ToolUseID: e.ToolUseID, Content: e.Content, Truncated: e.Truncated})
		case BlockKindImage:
			blocks = append(blocks, &ImageBlock{SourceRef: e.SourceRef})
		}
	}
	*l = blocks
	return nil
}

// ToolUseCount 统计列表中 ToolUse 块数量。
func (l BlockList) ToolUseCount() int {
	count := 0
	for _, b := range l {
		if b.Kind() == BlockKindToolUse {
			count++
		}
	}
	return count
}

// CloneBlock 深拷贝单个内容块。
func CloneBlock(b ContentBlock) ContentBlock {
	switch v := b.(type) {
	case *TextBlock:
		c := *v
		return &c
	case *ThinkingBlock:
		c := *v
		return &c
	case *ToolUseBlock:
		c := *v
		if v.Input != nil {
			c.Input = append(json.RawMessage{}, v.Input...)
		}
		return &c
	case *ToolResultBlock:
		c := *v
		return &c
	case *ImageBlock:
		c := *v
		return &c
	default:
		return b
	}
}

// CloneBlocks 深拷贝内容块序列。
func CloneBlocks(blocks BlockList) BlockList {
	if len(blocks) == 0 {
		return nil
	}
	out := make(BlockList, len(blocks))
	for i, b := range blocks {
		out[i] = CloneBlock(b)
	}
	return out
}
