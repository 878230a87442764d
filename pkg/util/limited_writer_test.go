package util

import (
	"bytes"
	"testing"
)

func TestLimitedWriter_WritesUpToLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLimitedWriter(&buf, 10)

	n, err := lw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected n=5, got %d", n)
	}
	if buf.String() != "hello" {
		t.Fatalf("expected 'hello', got %q", buf.String())
	}
}

func TestLimitedWriter_TruncatesAtLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLimitedWriter(&buf, 10)

	// 写 12 字节, 只保留 10; 返回 len(p) 使 exec.Cmd 不误判管道断裂
	n, err := lw.Write([]byte("123456789012"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 {
		t.Fatalf("expected n=12, got %d", n)
	}
	if buf.String() != "1234567890" {
		t.Fatalf("expected '1234567890', got %q", buf.String())
	}
	if !lw.Overflow() {
		t.Fatal("expected overflow")
	}
}

func TestLimitedWriter_SilentlyDiscardsAfterLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLimitedWriter(&buf, 5)

	_, _ = lw.Write([]byte("hello"))
	n, err := lw.Write([]byte("world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected n=5 (silently discarded), got %d", n)
	}
	if buf.String() != "hello" {
		t.Fatalf("expected 'hello', got %q", buf.String())
	}
	if lw.Written() != 5 {
		t.Fatalf("Written() = %d, want 5", lw.Written())
	}
}
