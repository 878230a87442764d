// reconcile.go — 权威快照与 in-flight 流式状态的合并规则。
package session

import (
	"time"

	"github.com/agentbridge/go-agent-bridge/internal/stream"
	"github.com/agentbridge/go-agent-bridge/internal/transcript"
)

// reconciler 跨快照调用保留定位与抑制判据的簿记。
//
// 后端的持久化快照对工具调用/结果是最终权威 (只有它看得到完成),
// 但对 in-flight text/thinking 不是 — 增量流才见过这些内容。
type reconciler struct {
	lastStreamIndex   int // 上次定位到的流式消息索引, -1 = 未定位
	lastSnapshotCount int
	lastToolUseCount  int
}

func newReconciler() *reconciler {
	return &reconciler{lastStreamIndex: -1}
}

func (r *reconciler) reset() {
	r.lastStreamIndex = -1
	r.lastSnapshotCount = 0
	r.lastToolUseCount = 0
}

// apply 将快照合并进 store。返回是否产生可见变化 (false = 冗余刷新被抑制)。
func (r *reconciler) apply(store *transcript.Store, st *stream.State, snapshot []transcript.Message) bool {
	// 规则 1: 无活动流 → 快照原样生效
	if !st.Active {
		store.Replace(snapshot)
		r.reset()
		r.lastSnapshotCount = len(snapshot)
		return true
	}

	// 规则 2: 定位流式消息 — 上次索引仍指向 assistant 则沿用;
	// 否则回退到最后一条 assistant; 再否则追加占位消息。
	target := r.locateTarget(snapshot, st.TurnToken)
	if target >= len(snapshot) {
		snapshot = append(snapshot, transcript.Message{
			Role:      transcript.RoleAssistant,
			Timestamp: time.Now(),
		})
	}

	// 规则 3: 冗余刷新抑制 — 消息数不变、尾消息是 assistant、
	// 且没有新工具调用时, 丢弃快照保持当前显示 (防闪烁)。
	snapToolUses := snapshot[target].Blocks.ToolUseCount()
	if len(snapshot) == r.lastSnapshotCount &&
		len(snapshot) > 0 &&
		snapshot[len(snapshot)-1].Role == transcript.RoleAssistant &&
		snapToolUses <= r.lastToolUseCount {
		return false
	}

	// 规则 4: 接受快照, 在目标索引上用流式相位覆盖 text/thinking,
	// 保留快照中既有的 ToolUse/ToolResult/Image 结构块。
	st.ObserveToolUseCount(snapToolUses)
	store.Replace(snapshot)
	store.Patch(target, func(m *transcript.Message) {
		toolUses, trailing := stream.SplitStructural(m.Blocks)
		m.Blocks = st.RenderBlocks(toolUses, trailing)
		m.Text = st.CombinedText()
		m.TurnToken = st.TurnToken
		m.Streaming = true
	})

	r.lastStreamIndex = target
	r.lastSnapshotCount = len(snapshot)
	r.lastToolUseCount = snapToolUses
	return true
}

// locateTarget 返回快照中流式消息的索引; 可能等于 len(snapshot) 表示需要追加。
func (r *reconciler) locateTarget(snapshot []transcript.Message, turnToken string) int {
	// 稳定句柄优先: 后端不感知 turnToken, 但上一轮对账可能已盖章
	if turnToken != "" {
		for i := len(snapshot) - 1; i >= 0; i-- {
			if snapshot[i].TurnToken == turnToken {
				return i
			}
		}
	}
	if r.lastStreamIndex >= 0 && r.lastStreamIndex < len(snapshot) &&
		snapshot[r.lastStreamIndex].Role == transcript.RoleAssistant {
		return r.lastStreamIndex
	}
	for i := len(snapshot) - 1; i >= 0; i-- {
		if snapshot[i].Role == transcript.RoleAssistant {
			return i
		}
	}
	return len(snapshot)
}
