package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/agentbridge/go-agent-bridge/internal/transcript"
)

func TestToTranscriptDecodesBlocks(t *testing.T) {
	blocks, _ := json.Marshal([]map[string]any{
		{"type": "text", "content": "hello"},
		{"type": "tool_use", "id": "t1", "name": "bash", "input": map[string]string{"cmd": "ls"}},
	})
	records := []MessageRecord{{
		SessionID: "s1",
		Role:      "assistant",
		Content:   "hello",
		Blocks:    blocks,
		CreatedAt: time.Now(),
	}}

	msgs := ToTranscript(records)
	if len(msgs) != 1 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Role != transcript.RoleAssistant {
		t.Fatalf("role = %q", msgs[0].Role)
	}
	if len(msgs[0].Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(msgs[0].Blocks))
	}
	tu, ok := msgs[0].Blocks[1].(*transcript.ToolUseBlock)
	if !ok || tu.Name != "bash" {
		t.Fatalf("block 1 = %#v", msgs[0].Blocks[1])
	}
}

func TestToTranscriptKeepsTextOnBadBlocks(t *testing.T) {
	records := []MessageRecord{{
		Role:    "assistant",
		Content: "still here",
		Blocks:  json.RawMessage(`{broken`),
	}}
	msgs := ToTranscript(records)
	if len(msgs) != 1 || msgs[0].Text != "still here" {
		t.Fatalf("message lost on bad blocks: %+v", msgs)
	}
	if len(msgs[0].Blocks) != 0 {
		t.Fatalf("bad blocks must be dropped, got %+v", msgs[0].Blocks)
	}
}

func TestParseRoleFallsBackToSystem(t *testing.T) {
	cases := map[string]transcript.Role{
		"user":      transcript.RoleUser,
		"assistant": transcript.RoleAssistant,
		"system":    transcript.RoleSystem,
		"error":     transcript.RoleError,
		"tool":      transcript.RoleSystem,
		"":          transcript.RoleSystem,
	}
	for in, want := range cases {
		if got := parseRole(in); got != want {
			t.Errorf("parseRole(%q) = %q, want %q", in, got, want)
		}
	}
}
