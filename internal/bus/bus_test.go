package bus

import (
	"testing"
	"time"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"*", "transcript.s1", true},
		{"transcript.s1", "transcript.s1", true},
		{"transcript.s1", "transcript.s1.extra", true},
		{"transcript", "transcript.s1", true},
		{"transcript.s1", "transcript.s2", false},
		{"transcript.s1", "transcript.s10", false},
		{"session", "transcript.s1", false},
	}
	for _, tc := range cases {
		if got := matchTopic(tc.filter, tc.topic); got != tc.want {
			t.Fatalf("matchTopic(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}

func TestPublishBus_FanOut(t *testing.T) {
	b := NewPublishBus()
	s1 := b.Subscribe("sub-1", "transcript.s1")
	all := b.Subscribe("sub-all", "*")
	other := b.Subscribe("sub-other", "transcript.s2")

	b.Publish(Message{Topic: TranscriptTopic("s1"), Type: MsgTranscript, SessionID: "s1"})

	select {
	case msg := <-s1.Ch:
		if msg.Seq != 1 || msg.Type != MsgTranscript {
			t.Fatalf("msg = %+v", msg)
		}
		if msg.Timestamp.IsZero() {
			t.Fatal("timestamp should be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("matching subscriber did not receive")
	}
	select {
	case <-all.Ch:
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber did not receive")
	}
	select {
	case <-other.Ch:
		t.Fatal("non-matching subscriber received message")
	default:
	}
}

func TestPublishBus_SeqMonotonic(t *testing.T) {
	b := NewPublishBus()
	sub := b.Subscribe("s", "*")
	for range 3 {
		b.Publish(Message{Topic: "transcript.x"})
	}
	var last int64
	for range 3 {
		msg := <-sub.Ch
		if msg.Seq <= last {
			t.Fatalf("seq not increasing: %d after %d", msg.Seq, last)
		}
		last = msg.Seq
	}
}

func TestPublishBus_FullChannelDropsWithoutBlocking(t *testing.T) {
	b := NewPublishBus()
	b.Subscribe("slow", "*")

	done := make(chan struct{})
	go func() {
		for range 100 {
			b.Publish(Message{Topic: "transcript.x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}
}

func TestPublishBus_Unsubscribe(t *testing.T) {
	b := NewPublishBus()
	sub := b.Subscribe("s", "*")
	b.Unsubscribe("s")
	if b.SubscriberCount() != 0 {
		t.Fatalf("count = %d", b.SubscriberCount())
	}
	if _, open := <-sub.Ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestPublishBus_OnPublishCallback(t *testing.T) {
	b := NewPublishBus()
	var seen []string
	b.SetOnPublish(func(m Message) { seen = append(seen, m.Topic) })
	b.Publish(Message{Topic: SessionTopic("s1"), Type: MsgSessionState})
	if len(seen) != 1 || seen[0] != "session.s1" {
		t.Fatalf("seen = %v", seen)
	}
}
