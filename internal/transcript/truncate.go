// truncate.go — 传输截断: 限制跨进程边界的工具结果体积。
package transcript

import "fmt"

// 截断默认参数。
const (
	// DefaultTruncateThreshold 超过此字符数的工具结果才截断。
	DefaultTruncateThreshold = 20000
	// DefaultTruncateHeadRatio 预算中分给头部的比例, 余量给尾部。
	DefaultTruncateHeadRatio = 0.65
)

// Truncator 按阈值截断 ToolResult 内容, 保留头尾供人工检视。
type Truncator struct {
	Threshold int
	HeadRatio float64
}

// NewTruncator 创建 Truncator。非法参数回落到默认值。
func NewTruncator(threshold int, headRatio float64) *Truncator {
	if threshold <= 0 {
		threshold = DefaultTruncateThreshold
	}
	if headRatio <= 0 || headRatio >= 1 {
		headRatio = DefaultTruncateHeadRatio
	}
	return &Truncator{Threshold: threshold, HeadRatio: headRatio}
}

// Apply 对消息序列做传输前截断。
//
// 无超限内容时原样返回 (零拷贝); 有超限时仅深拷贝受影响的消息,
// 其余消息共享原底层数据。返回截断的块数量供统计。
func (t *Truncator) Apply(msgs []Message) ([]Message, int) {
	var out []Message
	truncated := 0
	for i := range msgs {
		if !t.needsTruncation(msgs[i].Blocks) {
			if out != nil {
				out[i] = msgs[i]
			}
			continue
		}
		if out == nil {
			out = make([]Message, len(msgs))
			copy(out, msgs[:i])
		}
		clone := msgs[i].Clone()
		for _, b := range clone.Blocks {
			if result, ok := b.(*ToolResultBlock); ok {
				if n := t.truncateResult(result); n {
					truncated++
				}
			}
		}
		out[i] = clone
	}
	if out == nil {
		return msgs, 0
	}
	return out, truncated
}

func (t *Truncator) needsTruncation(blocks BlockList) bool {
	for _, b := range blocks {
		if result, ok := b.(*ToolResultBlock); ok {
			if len([]rune(result.Content)) > t.Threshold {
				return true
			}
		}
	}
	return false
}

// truncateResult 原位截断单个结果块。头尾均取自原始内容, 不会二次截断。
func (t *Truncator) truncateResult(result *ToolResultBlock) bool {
	runes := []rune(result.Content)
	total := len(runes)
	if total <= t.Threshold {
		return false
	}
	headLen := int(float64(t.Threshold) * t.HeadRatio)
	tailLen := t.Threshold - headLen
	marker := fmt.Sprintf("...(truncated, original length: %d)...", total)
	result.Content = string(runes[:headLen]) + marker + string(runes[total-tailLen:])
	result.Truncated = true
	return true
}
