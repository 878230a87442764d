// coalescer.go — 发布合并: 以固定间隔节流高频 "内容已变" 信号。
package stream

import (
	"sync"
	"time"
)

// DefaultCoalesceInterval 发布节流间隔参考值。
const DefaultCoalesceInterval = 50 * time.Millisecond

// Coalescer 将高频信号合并为至多每 interval 一次的 fire 调用,
// 并保证静默前最后一个信号的内容最终恰好发布一次。
//
// fire 回调在节流窗口外的 Signal 调用栈上同步执行, 或在尾随定时器的
// goroutine 上执行 — 回调自身负责重新进入 session actor。
// 两个独立实例并行运行 (text / thinking), thinking 增量的爆发
// 不会把并发到达的 text 增量可见性拖过间隔。
type Coalescer struct {
	interval time.Duration
	fire     func()

	mu          sync.Mutex
	timer       *time.Timer
	lastPublish time.Time
	disposed    bool
	now         func() time.Time // 测试注入
}

// NewCoalescer 创建 Coalescer。interval <= 0 时使用默认值。
func NewCoalescer(interval time.Duration, fire func()) *Coalescer {
	if interval <= 0 {
		interval = DefaultCoalesceInterval
	}
	return &Coalescer{
		interval: interval,
		fire:     fire,
		now:      time.Now,
	}
}

// Signal 通知内容已变化。
//
// 距上次发布已满 interval → 立即发布; 否则在剩余时间预算上武装一个
// 尾随定时器。定时器已武装时仅更新累积内容 (调用方状态), 不二次武装。
func (c *Coalescer) Signal() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	now := c.now()
	elapsed := now.Sub(c.lastPublish)
	if elapsed >= c.interval {
		c.lastPublish = now
		c.mu.Unlock()
		c.fire()
		return
	}
	if c.timer != nil {
		// 已有定时器在途: 内容累积由调用方持有, 定时器触发时取最新值
		c.mu.Unlock()
		return
	}
	c.timer = time.AfterFunc(c.interval-elapsed, c.onTimer)
	c.mu.Unlock()
}

// onTimer 尾随定时器触发: 发布最新累积内容。
func (c *Coalescer) onTimer() {
	c.mu.Lock()
	if c.disposed || c.timer == nil {
		// Cancel/Flush 赢得竞态, 定时器作废
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.lastPublish = c.now()
	c.mu.Unlock()
	c.fire()
}

// Flush 取消在途定时器并无条件同步发布 (turn 收尾)。
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.lastPublish = c.now()
	c.mu.Unlock()
	c.fire()
}

// Cancel 取消在途定时器且不发布 (中断路径: 不得闪现已清除的内容)。
func (c *Coalescer) Cancel() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
}

// Dispose 永久停用: 取消定时器, 之后所有 Signal/Flush 均为 no-op。
func (c *Coalescer) Dispose() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.disposed = true
	c.mu.Unlock()
}

// Pending 返回是否有定时器在途 (诊断)。
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Coalescer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
