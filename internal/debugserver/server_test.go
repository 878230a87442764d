package debugserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentbridge/go-agent-bridge/internal/bus"
	"github.com/agentbridge/go-agent-bridge/internal/session"
)

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	b := bus.NewPublishBus()
	m := session.NewManager(b, nil, session.Options{CoalesceInterval: 10 * time.Millisecond})
	t.Cleanup(m.DisposeAll)
	return NewServer(m, b), m
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestListSessions(t *testing.T) {
	s, m := newTestServer(t)
	if _, err := m.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	w := doGet(t, s, "/debug/sessions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Data) != 1 || resp.Data[0] != "s1" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestTranscriptUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)
	if w := doGet(t, s, "/debug/transcript/nope"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, m := newTestServer(t)
	sess, err := m.Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess.HandleUserMessage("hello", nil)

	// 发布是异步的, 轮询直到统计可见
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.Stats().Publishes > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := doGet(t, s, "/debug/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Sessions []session.Stats `json:"sessions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data.Sessions) != 1 || resp.Data.Sessions[0].SessionID != "s1" {
		t.Fatalf("stats = %+v", resp.Data.Sessions)
	}
	if resp.Data.Sessions[0].Publishes == 0 {
		t.Fatalf("expected at least one publish recorded")
	}
}
