// client.go — 后端子进程生命周期 + WebSocket 传输: 连接、重连、事件读取。
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/agentbridge/go-agent-bridge/pkg/errors"
	"github.com/agentbridge/go-agent-bridge/pkg/logger"
	"github.com/agentbridge/go-agent-bridge/pkg/util"
)

const (
	defaultStartupTimeout  = 30 * time.Second
	defaultReadIdleTimeout = 90 * time.Second
	defaultStdoutLimit     = 1 << 20

	pingInterval       = 15 * time.Second
	pingWriteTimeout   = 5 * time.Second
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 8 * time.Second
)

// Config 后端桥接参数。
type Config struct {
	Port int
	// Command 启动后端的 argv; --listen ws://127.0.0.1:{port} 自动追加。
	// 为空表示不 spawn, 只连接已有后端。
	Command             []string
	StartupTimeout      time.Duration
	ReadIdleTimeout     time.Duration
	ReconnectMaxRetries int
	StdoutLimitBytes    int
}

// Client 后端桥接客户端。
//
// 子进程的生命周期独立于任何请求 ctx — 用 Shutdown()/Kill() 显式管理。
// wsMu 保护 ws 指针与写操作; 读始终在单个 readLoop goroutine 上。
type Client struct {
	cfg Config
	cmd *exec.Cmd

	ws     *websocket.Conn
	wsMu   sync.Mutex
	wsDone chan struct{}

	handler   Handler
	handlerMu sync.RWMutex
	// onReconnect 重连成功后回调 (重新请求快照等重同步动作)
	onReconnect func()

	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	stderrCollector *logger.StderrCollector
	stdout          *util.LimitedWriter
}

// NewClient 创建桥接客户端。
func NewClient(cfg Config) *Client {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = defaultReadIdleTimeout
	}
	if cfg.StdoutLimitBytes <= 0 {
		cfg.StdoutLimitBytes = defaultStdoutLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		wsDone: make(chan struct{}),
	}
}

// SetHandler 注册入站事件回调。
func (c *Client) SetHandler(h Handler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// SetOnReconnect 注册重连成功回调。
func (c *Client) SetOnReconnect(fn func()) {
	c.handlerMu.Lock()
	c.onReconnect = fn
	c.handlerMu.Unlock()
}

// ========================================
// 进程管理
// ========================================

// Spawn 启动后端子进程并等待其 WebSocket 端口可用。
//
// 注意: 使用 exec.Command 而非 exec.CommandContext —
// 子进程不应随调用方 ctx 取消而被终止, ctx 仅控制启动探测。
func (c *Client) Spawn(ctx context.Context) error {
	if len(c.cfg.Command) == 0 {
		return nil // attach-only 模式
	}
	if c.cfg.Port > 0 {
		if err := checkPortFree(c.cfg.Port); err != nil {
			return apperrors.Wrapf(err, "Client.Spawn", "port %d occupied", c.cfg.Port)
		}
	}

	listenURL := fmt.Sprintf("ws://127.0.0.1:%d", c.cfg.Port)
	argv := append(append([]string{}, c.cfg.Command...), "--listen", listenURL)
	c.cmd = exec.Command(argv[0], argv[1:]...)
	c.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.cmd.Env = os.Environ()
	c.stdout = util.NewLimitedWriter(io.Discard, c.cfg.StdoutLimitBytes)
	c.cmd.Stdout = c.stdout
	c.stderrCollector = logger.NewStderrCollector(fmt.Sprintf("agent-backend-%d", c.cfg.Port))
	c.cmd.Stderr = c.stderrCollector

	if err := c.cmd.Start(); err != nil {
		return apperrors.Wrap(err, "Client.Spawn", "spawn backend")
	}

	// 等待端口可用 (受 StartupTimeout 与 ctx 双重限制)
	deadline := time.Now().Add(c.cfg.StartupTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			_ = c.Kill()
			return apperrors.Wrap(ctx.Err(), "Client.Spawn", "spawn cancelled")
		default:
		}
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", c.cfg.Port), 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			logger.Info("bridge: backend listening", logger.FieldPort, c.cfg.Port)
			return nil
		}
		time.Sleep(300 * time.Millisecond)
	}
	_ = c.Kill()
	return apperrors.Newf("Client.Spawn", "backend startup timeout on port %d", c.cfg.Port)
}

// Connect 建立 WebSocket 连接并启动 readLoop。
func (c *Client) Connect() error {
	conn, err := c.dialWS(c.ctx)
	if err != nil {
		return apperrors.Wrap(err, "Client.Connect", "ws connect")
	}
	c.replaceConn(conn)
	util.SafeGo(c.readLoop)
	util.SafeGo(func() { c.pingLoop(conn) })
	return nil
}

func (c *Client) dialWS(ctx context.Context) (*websocket.Conn, error) {
	wsURL := fmt.Sprintf("ws://127.0.0.1:%d", c.cfg.Port)
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
		NetDialContext:   (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadIdleTimeout))
		return nil
	})
	return conn, nil
}

func (c *Client) currentConn() *websocket.Conn {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws
}

func (c *Client) replaceConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	c.wsMu.Lock()
	prev := c.ws
	c.ws = conn
	c.wsMu.Unlock()
	if prev != nil && prev != conn {
		_ = prev.Close()
	}
}

// ========================================
// 读循环与重连
// ========================================

func (c *Client) readLoop() {
	defer func() {
		c.wsMu.Lock()
		if c.ws != nil {
			_ = c.ws.Close()
		}
		c.wsMu.Unlock()
		select {
		case <-c.wsDone:
		default:
			close(c.wsDone)
		}
	}()

	for !c.stopped.Load() {
		conn := c.currentConn()
		if conn == nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.stopped.Load() {
				return
			}
			if !c.reconnect("read error", err) {
				return
			}
			continue
		}

		env, err := DecodeEnvelope(raw)
		if err != nil {
			// 不可解析的事件丢弃, 不影响流 — 留日志定位
			logger.Warn("bridge: dropped unparseable event",
				logger.FieldError, err,
				"raw_len", len(raw),
				"raw_prefix", truncateBytes(raw, 200),
			)
			continue
		}

		c.handlerMu.RLock()
		h := c.handler
		c.handlerMu.RUnlock()
		if h == nil {
			logger.Warn("bridge: dropping event (no handler registered)",
				logger.FieldEventType, env.Type)
			continue
		}
		h(env)
	}
}

func reconnectDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := reconnectBaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= reconnectMaxDelay {
			return reconnectMaxDelay
		}
	}
	if delay > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return delay
}

func (c *Client) sleepWithContext(delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) reconnect(trigger string, lastErr error) bool {
	maxRetries := c.cfg.ReconnectMaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if c.stopped.Load() {
			return false
		}
		// 子进程已退出则无需重连 — 避免无效 dial 浪费时间。
		if len(c.cfg.Command) > 0 && !c.Running() {
			logger.Warn("bridge: reconnect aborted — backend exited", "trigger", trigger)
			return false
		}
		if !c.sleepWithContext(reconnectDelay(attempt)) {
			return false
		}
		conn, err := c.dialWS(c.ctx)
		if err != nil {
			logger.Warn("bridge: reconnect attempt failed",
				"trigger", trigger,
				"attempt", attempt,
				"max_retries", maxRetries,
				logger.FieldError, err,
			)
			continue
		}
		c.replaceConn(conn)
		util.SafeGo(func() { c.pingLoop(conn) })
		logger.Info("bridge: reconnected", "trigger", trigger, "attempt", attempt)

		c.handlerMu.RLock()
		onReconnect := c.onReconnect
		c.handlerMu.RUnlock()
		if onReconnect != nil {
			// 断线期间的事件已丢失, 重同步交给快照
			onReconnect()
		}
		return true
	}
	logger.Warn("bridge: reconnect exhausted",
		"trigger", trigger,
		"max_retries", maxRetries,
		logger.FieldError, lastErr,
	)
	return false
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.currentConn() != conn {
				return // 连接已被重连替换, 新 pingLoop 接手
			}
			c.wsMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteTimeout))
			c.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ========================================
// 出站命令
// ========================================

// SendUserInput 向后端提交用户输入。
func (c *Client) SendUserInput(sessionID, text string) error {
	payload, err := json.Marshal(UserInputPayload{Text: text})
	if err != nil {
		return apperrors.Wrap(err, "Client.SendUserInput", "marshal")
	}
	return c.writeJSON(Envelope{Type: CmdUserInput, SessionID: sessionID, Payload: payload})
}

// SendInterrupt 请求后端中断指定会话的当前 turn。
func (c *Client) SendInterrupt(sessionID string) error {
	return c.writeJSON(Envelope{Type: CmdInterrupt, SessionID: sessionID})
}

// RequestSnapshot 请求后端推送一次权威快照。
func (c *Client) RequestSnapshot(sessionID string) error {
	return c.writeJSON(Envelope{Type: CmdSnapshotRequest, SessionID: sessionID})
}

// writeJSON 线程安全写入 WebSocket JSON。
func (c *Client) writeJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws == nil {
		return apperrors.Wrap(apperrors.ErrBridgeClosed, "Client.writeJSON", "ws not connected")
	}
	return c.ws.WriteJSON(v)
}

// ========================================
// 关闭
// ========================================

// Shutdown 优雅关闭: 关连接, 等 readLoop 退出, 杀子进程。
func (c *Client) Shutdown() error {
	if c.stopped.Swap(true) {
		return nil
	}
	if c.stderrCollector != nil {
		_ = c.stderrCollector.Close()
	}
	c.cancel()

	c.wsMu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.wsMu.Unlock()

	select {
	case <-c.wsDone:
	case <-time.After(3 * time.Second):
	}
	return c.Kill()
}

// Kill 强制终止子进程。
func (c *Client) Kill() error {
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	killErr := c.cmd.Process.Kill()
	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return killErr
	}
	waitErr := c.cmd.Wait()
	if waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return nil
	}
	waitMsg := waitErr.Error()
	if strings.Contains(waitMsg, "Wait was already called") || strings.Contains(waitMsg, "no child processes") {
		return nil
	}
	return waitErr
}

// Running 返回子进程是否仍在运行。
func (c *Client) Running() bool {
	return !c.stopped.Load() && c.cmd != nil && c.cmd.ProcessState == nil
}

// checkPortFree 检查端口是否空闲。
func checkPortFree(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	_ = l.Close()
	return nil
}

// truncateBytes 截断 []byte 用于日志展示, 避免超长。
func truncateBytes(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
