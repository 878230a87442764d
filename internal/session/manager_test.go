package session

import (
	"context"
	"testing"
	"time"

	"github.com/agentbridge/go-agent-bridge/internal/bus"
	"github.com/agentbridge/go-agent-bridge/internal/transcript"
	"github.com/agentbridge/go-agent-bridge/pkg/errors"
)

type fakeHistory struct {
	msgs []transcript.Message
	err  error
}

func (f *fakeHistory) LoadHistory(ctx context.Context, sessionID string) ([]transcript.Message, error) {
	return f.msgs, f.err
}

func TestManagerOpenIsIdempotent(t *testing.T) {
	m := NewManager(bus.NewPublishBus(), nil, Options{})
	defer m.DisposeAll()

	s1, err := m.Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s2, err := m.Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("same id must return same session")
	}
}

func TestManagerGetUnknownSession(t *testing.T) {
	m := NewManager(bus.NewPublishBus(), nil, Options{})
	defer m.DisposeAll()

	if _, err := m.Get("nope"); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestManagerHydratesHistoryOnOpen(t *testing.T) {
	b := bus.NewPublishBus()
	m := NewManager(b, &fakeHistory{msgs: []transcript.Message{
		{Role: transcript.RoleUser, Text: "earlier question"},
		{Role: transcript.RoleAssistant, Text: "earlier answer"},
	}}, Options{})
	defer m.DisposeAll()

	sub := b.Subscribe("t", bus.TopicAll)
	s, err := m.Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	msg := waitMsg(t, sub, 2*time.Second, func(m bus.Message) bool {
		return m.Type == bus.MsgTranscript
	})
	upd := transcriptOf(t, msg)
	if len(upd.Messages) != 2 || upd.Messages[1].Text != "earlier answer" {
		t.Fatalf("history not hydrated: %+v", upd.Messages)
	}
	if st := s.Stats(); st.Active {
		t.Fatalf("hydration must not start a stream")
	}
}

func TestManagerHistoryFailureIsNonFatal(t *testing.T) {
	m := NewManager(bus.NewPublishBus(), &fakeHistory{err: errors.New("db", "down")}, Options{})
	defer m.DisposeAll()

	if _, err := m.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("history failure must not block open: %v", err)
	}
}

func TestManagerDisposeAll(t *testing.T) {
	m := NewManager(bus.NewPublishBus(), nil, Options{})
	if _, err := m.Open(context.Background(), "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	m.DisposeAll()

	if _, err := m.Open(context.Background(), "s2"); !errors.Is(err, errors.ErrSessionDisposed) {
		t.Fatalf("err = %v, want ErrSessionDisposed", err)
	}
	if len(m.List()) != 0 {
		t.Fatalf("sessions remain after DisposeAll")
	}
}
