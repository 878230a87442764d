// Package errors 提供统一错误类型与哨兵错误。
//
// 本包为 go-agent-bridge 两层错误体系:
//   - L1 哨兵错误: ErrNotFound / ErrInvalidInput / ErrSessionDisposed 等
//   - L2 AppError: 带 Op + Code + Message 的应用级错误
package errors

import (
	"errors"
	"fmt"
)

// ========================================
// L1 哨兵错误 (Sentinel Errors)
// ========================================

var (
	// ErrNotFound 资源不存在 (session / message)
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput 输入参数无效
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout 操作超时
	ErrTimeout = errors.New("timeout")

	// ErrInternal 内部错误
	ErrInternal = errors.New("internal error")

	// ErrSessionDisposed session 已销毁, 拒绝后续事件/定时器重入
	ErrSessionDisposed = errors.New("session disposed")

	// ErrStaleGeneration 上一代 turn 的异步结果, 按约定静默丢弃
	ErrStaleGeneration = errors.New("stale generation")

	// ErrBridgeClosed 后端桥接通道已关闭
	ErrBridgeClosed = errors.New("bridge closed")

	// ErrMalformedEvent 事件载荷无法解析 (丢弃单条, 不中断 session)
	ErrMalformedEvent = errors.New("malformed event")
)

// ========================================
// L2 AppError (应用级错误)
// ========================================

// AppError 应用级错误，带操作上下文。
type AppError struct {
	Op      string // 操作名，如 "Session.ApplySnapshot"
	Code    string // 错误码，如 "BRIDGE_ERROR"、"VALIDATION"
	Message string // 人类可读消息
	Err     error  // 原始错误
}

// Error 实现 error 接口。
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap 支持 errors.Is / errors.As 链式查找。
func (e *AppError) Unwrap() error {
	return e.Err
}

// ========================================
// 工厂函数
// ========================================

// New 创建无原因链的应用错误。
func New(op, message string) error {
	return &AppError{Op: op, Message: message}
}

// Newf 创建带格式化消息的应用错误。
func Newf(op, format string, args ...any) error {
	return &AppError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装错误并附加操作上下文。nil 原因返回 nil。
func Wrap(err error, op, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Op: op, Message: message, Err: err}
}

// Wrapf 包装错误并附加格式化上下文。nil 原因返回 nil。
func Wrapf(err error, op, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &AppError{Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithCode 创建带错误码的应用错误。
func WithCode(op, code, message string) error {
	return &AppError{Op: op, Code: code, Message: message}
}

// ========================================
// 查询辅助
// ========================================

// Is 透传 errors.Is，调用方无需同时 import 标准库 errors。
func Is(err, target error) bool { return errors.Is(err, target) }

// As 透传 errors.As。
func As(err error, target any) bool { return errors.As(err, target) }

// OpOf 提取错误链中最外层 AppError 的 Op, 无则返回空串。
func OpOf(err error) string {
	var app *AppError
	if errors.As(err, &app) {
		return app.Op
	}
	return ""
}

// CodeOf 提取错误链中最外层 AppError 的 Code, 无则返回空串。
func CodeOf(err error) string {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ""
}
