package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestAppError_ErrorFormat(t *testing.T) {
	err := New("Session.Publish", "publish failed")
	if got := err.Error(); got != "Session.Publish: publish failed" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestAppError_ErrorFormatWithCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, "Bridge.Dial", "ws connect")
	if got := err.Error(); got != "Bridge.Dial: ws connect: boom" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	if Wrap(nil, "Op", "msg") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "Op", "msg %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
}

func TestUnwrap_SentinelChain(t *testing.T) {
	err := Wrap(ErrSessionDisposed, "Session.Enqueue", "rejected")
	if !errors.Is(err, ErrSessionDisposed) {
		t.Fatal("errors.Is should find ErrSessionDisposed through AppError")
	}
}

func TestWrapf_FormatsMessage(t *testing.T) {
	err := Wrapf(ErrTimeout, "Bridge.Spawn", "startup timeout on port %d", 4810)
	if !strings.Contains(err.Error(), "port 4810") {
		t.Fatalf("Error() = %q, want port in message", err.Error())
	}
}

func TestOpOfAndCodeOf(t *testing.T) {
	err := WithCode("Store.ListBySession", "DB_ERROR", "query failed")
	if OpOf(err) != "Store.ListBySession" {
		t.Fatalf("OpOf = %q", OpOf(err))
	}
	if CodeOf(err) != "DB_ERROR" {
		t.Fatalf("CodeOf = %q", CodeOf(err))
	}
	if OpOf(errors.New("plain")) != "" {
		t.Fatal("OpOf(plain error) should be empty")
	}
}
