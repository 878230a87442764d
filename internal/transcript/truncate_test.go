package transcript

import (
	"fmt"
	"strings"
	"testing"
)

func toolResultMessage(content string) Message {
	return Message{
		Role: RoleAssistant,
		Blocks: BlockList{
			&ToolUseBlock{ID: "t1", Name: "bash"},
			&ToolResultBlock{ToolUseID: "t1", Content: content},
		},
	}
}

func TestTruncator_PassThroughUnderThreshold(t *testing.T) {
	tr := NewTruncator(0, 0)
	content := strings.Repeat("a", DefaultTruncateThreshold)
	msgs := []Message{toolResultMessage(content)}

	out, n := tr.Apply(msgs)
	if n != 0 {
		t.Fatalf("truncated count = %d, want 0", n)
	}
	// 零拷贝: 返回同一底层切片
	if &out[0] != &msgs[0] {
		t.Fatal("under-threshold apply should return input verbatim")
	}
	result := out[0].Blocks[1].(*ToolResultBlock)
	if result.Content != content || result.Truncated {
		t.Fatal("under-threshold content must be byte-identical")
	}
}

func TestTruncator_HeadTailSplit(t *testing.T) {
	tr := NewTruncator(0, 0)
	total := 30000
	content := strings.Repeat("x", total)
	msgs := []Message{toolResultMessage(content)}

	out, n := tr.Apply(msgs)
	if n != 1 {
		t.Fatalf("truncated count = %d, want 1", n)
	}
	result := out[0].Blocks[1].(*ToolResultBlock)
	if !result.Truncated {
		t.Fatal("Truncated flag not set")
	}
	marker := fmt.Sprintf("...(truncated, original length: %d)...", total)
	if !strings.Contains(result.Content, marker) {
		t.Fatalf("marker missing, got %q", result.Content[12990:13050])
	}
	headLen := int(float64(DefaultTruncateThreshold) * DefaultTruncateHeadRatio)
	tailLen := DefaultTruncateThreshold - headLen
	if got := len([]rune(result.Content)); got != headLen+len([]rune(marker))+tailLen {
		t.Fatalf("truncated length = %d, want %d", got, headLen+len([]rune(marker))+tailLen)
	}
	if headLen != 13000 {
		t.Fatalf("head length = %d, want 13000 (65%% of 20000)", headLen)
	}
}

func TestTruncator_HeadAndTailFromOriginal(t *testing.T) {
	tr := NewTruncator(100, 0.65)
	content := "HEAD" + strings.Repeat("-", 200) + "TAIL"
	msgs := []Message{toolResultMessage(content)}

	out, _ := tr.Apply(msgs)
	result := out[0].Blocks[1].(*ToolResultBlock)
	if !strings.HasPrefix(result.Content, "HEAD") {
		t.Fatal("head must come from the original start")
	}
	if !strings.HasSuffix(result.Content, "TAIL") {
		t.Fatal("tail must come from the original end")
	}
}

func TestTruncator_OnlyAffectedMessageCopied(t *testing.T) {
	tr := NewTruncator(100, 0.65)
	plain := Message{Role: RoleUser, Text: "hi", Blocks: BlockList{&TextBlock{Content: "hi"}}}
	big := toolResultMessage(strings.Repeat("z", 500))
	msgs := []Message{plain, big}

	out, n := tr.Apply(msgs)
	if n != 1 {
		t.Fatalf("truncated count = %d, want 1", n)
	}
	// 未受影响的消息共享原块
	if out[0].Blocks[0] != msgs[0].Blocks[0] {
		t.Fatal("unaffected message should share blocks")
	}
	// 原始消息不被修改
	original := msgs[1].Blocks[1].(*ToolResultBlock)
	if original.Truncated || len(original.Content) != 500 {
		t.Fatal("original message mutated")
	}
}

func TestTruncator_Multibyte(t *testing.T) {
	tr := NewTruncator(10, 0.65)
	content := strings.Repeat("界", 50)
	msgs := []Message{toolResultMessage(content)}

	out, _ := tr.Apply(msgs)
	result := out[0].Blocks[1].(*ToolResultBlock)
	if strings.Contains(result.Content, "�") {
		t.Fatal("truncation split a rune")
	}
	if !strings.Contains(result.Content, "original length: 50") {
		t.Fatalf("marker should carry rune length, got %q", result.Content)
	}
}
