package bridge

import (
	"testing"
	"time"

	apperrors "github.com/agentbridge/go-agent-bridge/pkg/errors"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"content-delta","sessionId":"s1","payload":{"text":"hi"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != EventContentDelta || env.SessionID != "s1" {
		t.Fatalf("envelope = %+v", env)
	}
	if len(env.Payload) == 0 {
		t.Fatalf("payload lost")
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{not json`)); !apperrors.Is(err, apperrors.ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}
	if _, err := DecodeEnvelope([]byte(`{"sessionId":"s1"}`)); !apperrors.Is(err, apperrors.ErrMalformedEvent) {
		t.Fatalf("missing type: err = %v, want ErrMalformedEvent", err)
	}
}

func TestReconnectDelayBacksOff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, reconnectBaseDelay},
		{3, 2 * reconnectBaseDelay},
		{4, 4 * reconnectBaseDelay},
		{10, reconnectMaxDelay},
	}
	for _, tc := range cases {
		if got := reconnectDelay(tc.attempt); got != tc.want {
			t.Errorf("reconnectDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
