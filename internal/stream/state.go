// Package stream 维护 in-flight turn 的流式状态: 相位切分与发布合并。
//
// 相位 (phase) 是同一个 turn 内由工具调用分隔的连续 text/thinking 区段。
// 第 N+1 个 ToolUse 一经观察到, 相位 N 即密封, 后续增量进入新相位 —
// 工具调用前后的文本永不合并。
package stream

import (
	"regexp"
	"strings"

	"github.com/agentbridge/go-agent-bridge/internal/transcript"
)

// State 单个 turn 的流式累积状态。由 session actor 独占持有, 非并发安全。
type State struct {
	Active     bool
	TurnToken  string
	Generation uint64

	textPhases     []string
	thinkingPhases []string
	activeText     int // -1 = 无打开的 text 相位
	activeThinking int // -1 = 无打开的 thinking 相位
	toolUseCount   int
}

// NewState 创建空状态 (未激活)。
func NewState() *State {
	return &State{activeText: -1, activeThinking: -1}
}

// Begin 开始新 turn: 清空累积并递增世代。
func (s *State) Begin(turnToken string, generation uint64) {
	s.Active = true
	s.TurnToken = turnToken
	s.Generation = generation
	s.textPhases = nil
	s.thinkingPhases = nil
	s.activeText = -1
	s.activeThinking = -1
	s.toolUseCount = 0
}

// Clear 清空状态 (stream-end 或中断)。累积内容同时丢弃。
func (s *State) Clear() {
	s.Active = false
	s.TurnToken = ""
	s.textPhases = nil
	s.thinkingPhases = nil
	s.activeText = -1
	s.activeThinking = -1
	s.toolUseCount = 0
}

// AppendText 追加 text 增量。空增量为 no-op; 未激活时忽略 (状态已清)。
//
// 无打开的 text 相位时在当前相位槽开新相位, 并关闭打开的 thinking 相位 —
// thinking 之后出现 text 意味着该相位的推理已经结束。
func (s *State) AppendText(delta string) {
	if !s.Active || delta == "" {
		return
	}
	if s.activeText < 0 {
		s.activeText = s.toolUseCount
		s.activeThinking = -1
	}
	s.padText(s.activeText)
	s.textPhases[s.activeText] += delta
}

// AppendThinking 追加 thinking 增量。空增量为 no-op; 未激活时忽略。
//
// 无打开的 thinking 相位时, 在当前 text 相位 (或 text 未开始时的下一相位槽)
// 开新相位; 同一相位内的 thinking 与 text 可在工具调用前交错。
func (s *State) AppendThinking(delta string) {
	if !s.Active || delta == "" {
		return
	}
	if s.activeThinking < 0 {
		if s.activeText >= 0 {
			s.activeThinking = s.activeText
		} else {
			s.activeThinking = s.toolUseCount
		}
	}
	s.padThinking(s.activeThinking)
	s.thinkingPhases[s.activeThinking] += delta
}

// ObserveToolUseCount 观察快照中的 ToolUse 数量。
//
// 计数增加时密封两个活动相位指针, 使后续增量进入新相位。
// 计数只增不减; 乱序观察报告更小值时按既有值 clamp, 不予采信。
func (s *State) ObserveToolUseCount(n int) {
	if !s.Active || n <= s.toolUseCount {
		return
	}
	s.toolUseCount = n
	s.activeText = -1
	s.activeThinking = -1
}

// ToolUseCount 返回当前观察到的工具调用数。
func (s *State) ToolUseCount() int { return s.toolUseCount }

// TextPhases / ThinkingPhases 返回相位内容副本 (测试与诊断)。
func (s *State) TextPhases() []string     { return append([]string(nil), s.textPhases...) }
func (s *State) ThinkingPhases() []string { return append([]string(nil), s.thinkingPhases...) }

// CombinedText 返回全部 text 相位串接 (状态详情展示)。
func (s *State) CombinedText() string { return strings.Join(s.textPhases, "") }

func (s *State) padText(idx int) {
	for len(s.textPhases) <= idx {
		s.textPhases = append(s.textPhases, "")
	}
}

func (s *State) padThinking(idx int) {
	for len(s.thinkingPhases) <= idx {
		s.thinkingPhases = append(s.thinkingPhases, "")
	}
}

// ========================================
// 渲染: 相位 → 有序内容块
// ========================================

var excessBlankLines = regexp.MustCompile(`\n{3,}`)

// normalizeThinking 压缩 thinking 内容中的多余空行 (3+ 连续换行 → 2)。
func normalizeThinking(content string) string {
	return excessBlankLines.ReplaceAllString(content, "\n\n")
}

// RenderBlocks 装配流式消息的有序块列表。
//
// 按相位 0..max 依次输出 Thinking[p] (归一化后非空时)、Text[p] (非空时)、
// 该相位的 ToolUse (存在时); 与相位无关的结构块 (已解析的工具结果、图片)
// 追加在末尾。toolUses 与 trailing 来自 snapshot 中该消息的既有块。
func (s *State) RenderBlocks(toolUses []*transcript.ToolUseBlock, trailing transcript.BlockList) transcript.BlockList {
	maxPhase := len(s.textPhases)
	if len(s.thinkingPhases) > maxPhase {
		maxPhase = len(s.thinkingPhases)
	}
	if len(toolUses) > maxPhase {
		maxPhase = len(toolUses)
	}

	blocks := make(transcript.BlockList, 0, maxPhase*3+len(trailing))
	for p := 0; p < maxPhase; p++ {
		if p < len(s.thinkingPhases) {
			if content := normalizeThinking(s.thinkingPhases[p]); strings.TrimSpace(content) != "" {
				blocks = append(blocks, &transcript.ThinkingBlock{Content: content})
			}
		}
		if p < len(s.textPhases) && s.textPhases[p] != "" {
			blocks = append(blocks, &transcript.TextBlock{Content: s.textPhases[p]})
		}
		if p < len(toolUses) {
			blocks = append(blocks, toolUses[p])
		}
	}
	blocks = append(blocks, trailing...)
	return blocks
}

// SplitStructural 将 snapshot 消息的块拆为有序 ToolUse 列表与尾部结构块
// (工具结果、图片)。流式覆盖只保留这两类 — text/thinking 以增量流为准。
func SplitStructural(blocks transcript.BlockList) ([]*transcript.ToolUseBlock, transcript.BlockList) {
	var toolUses []*transcript.ToolUseBlock
	var trailing transcript.BlockList
	for _, b := range blocks {
		switch v := b.(type) {
		case *transcript.ToolUseBlock:
			toolUses = append(toolUses, v)
		case *transcript.ToolResultBlock, *transcript.ImageBlock:
			trailing = append(trailing, b)
		}
	}
	return toolUses, trailing
}
