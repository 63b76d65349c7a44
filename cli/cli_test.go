package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/richinex/counsel/advisor"
	"github.com/richinex/counsel/config"
	"github.com/richinex/counsel/llm"
	"github.com/richinex/counsel/model"
)

// cannedProvider asks for one knowledge search, then answers.
type cannedProvider struct {
	mu       sync.Mutex
	toolRuns int
	lastTool string
}

func (p *cannedProvider) Name() string  { return "canned" }
func (p *cannedProvider) Model() string { return "canned-1" }

func (p *cannedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

func (p *cannedProvider) ChatWithFormat(_ context.Context, _ []llm.ChatMessage, format *llm.ResponseFormat) (llm.LLMResponse, error) {
	if format != nil {
		return llm.LLMResponse{Content: `{"title": "Listen first", "suggestions": ["ask", "wait"]}`}, nil
	}
	return llm.LLMResponse{Content: "Be honest."}, nil
}

func (p *cannedProvider) ChatWithTools(_ context.Context, messages []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := messages[len(messages)-1]
	if last.Role != "tool" {
		return llm.LLMResponse{ToolCalls: []llm.ToolCall{{
			ID:        "call-1",
			Name:      "search_knowledge",
			Arguments: json.RawMessage(`{"query": "trust"}`),
		}}}, nil
	}
	p.toolRuns++
	p.lastTool = last.Content
	return llm.LLMResponse{Content: "Be honest."}, nil
}

func (p *cannedProvider) StreamChat(ctx context.Context, _ []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	for _, c := range []string{"Be ", "honest."} {
		select {
		case chunks <- c:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	dir := t.TempDir()
	kb := filepath.Join(dir, "kb")
	if err := os.MkdirAll(kb, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(kb, "trust.md"), []byte("# Trust\n\nHonesty builds trust over time.\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s := config.Defaults()
	s.LLM.Provider = "ollama"
	s.Store.Backend = "memory"
	s.Tools.SandboxDir = filepath.Join(dir, "sandbox")
	s.Knowledge.Dir = kb
	s.Chat.TokenBudget = 2000
	return s
}

func newTestRuntime(t *testing.T, s config.Settings) (*Runtime, *cannedProvider) {
	t.Helper()
	p := &cannedProvider{}
	rt, err := NewRuntime(s, WithProvider(p), WithRuntimeLogger(zap.NewNop()), WithTokenCounter(advisor.EstimateCounter))
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt, p
}

func expectOutput(t *testing.T, out *bytes.Buffer, want string) {
	t.Helper()
	if out.String() != want {
		t.Errorf("expected output %q, got %q", want, out.String())
	}
}

func TestNewRuntimeWiring(t *testing.T) {
	rt, _ := newTestRuntime(t, testSettings(t))

	if names := rt.Chain.Names(); !slices.Equal(names, []string{"TokenBudget", "ReReading", "Logger"}) {
		t.Errorf("unexpected advisor order %v", names)
	}
	if rt.Tools == nil {
		t.Fatal("expected tools")
	}
	names := rt.Tools.Names()
	for _, want := range []string{"run_terminal_command", "search_knowledge", "list_knowledge"} {
		if !slices.Contains(names, want) {
			t.Errorf("tool %s not registered", want)
		}
	}
	if rt.Knowledge == nil {
		t.Fatal("expected knowledge index")
	}
	if n := rt.Knowledge.Len(); n != 1 {
		t.Errorf("expected 1 knowledge document, got %d", n)
	}
}

func TestNewRuntimeToolsDisabled(t *testing.T) {
	s := testSettings(t)
	s.Tools.Enabled = false
	s.Chat.ReReading = false
	s.Chat.TokenBudget = 0
	rt, _ := newTestRuntime(t, s)

	if rt.Tools != nil {
		t.Error("expected no tools")
	}
	if names := rt.Chain.Names(); !slices.Equal(names, []string{"Logger"}) {
		t.Errorf("unexpected advisors %v", names)
	}

	var out bytes.Buffer
	ListTools(rt, false, &out)
	expectOutput(t, &out, "Tools are disabled.\n")
}

func TestNewRuntimeFileBackend(t *testing.T) {
	s := testSettings(t)
	s.Store.Backend = "file"
	s.Store.Dir = filepath.Join(t.TempDir(), "conversations")
	rt, _ := newTestRuntime(t, s)

	var out bytes.Buffer
	if err := Chat(context.Background(), rt, ChatOptions{Conversation: "c1", Window: -1}, "hi", nil, &out); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(s.Store.Dir, "*"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected one snapshot file, got %v", files)
	}
}

func TestNewRuntimeUnknownBackend(t *testing.T) {
	s := testSettings(t)
	s.Store.Backend = "redis"
	if _, err := NewRuntime(s, WithProvider(&cannedProvider{}), WithRuntimeLogger(zap.NewNop())); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestChatOneShotUsesTools(t *testing.T) {
	rt, p := newTestRuntime(t, testSettings(t))
	ctx := context.Background()

	var out bytes.Buffer
	if err := Chat(ctx, rt, ChatOptions{Conversation: "c1", Window: -1}, "how do we rebuild trust?", nil, &out); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	expectOutput(t, &out, "\nBe honest.\n\n")
	if p.toolRuns != 1 {
		t.Errorf("expected one tool round, got %d", p.toolRuns)
	}
	if !strings.Contains(p.lastTool, "Honesty builds trust") {
		t.Errorf("tool result missing knowledge: %q", p.lastTool)
	}

	out.Reset()
	if err := History(ctx, rt, "c1", 0, &out); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	expectOutput(t, &out, "[user] how do we rebuild trust?\n[assistant] Be honest.\n")
}

func TestChatREPL(t *testing.T) {
	rt, _ := newTestRuntime(t, testSettings(t))
	ctx := context.Background()

	in := strings.NewReader("hello\n\nagain\nexit\nnever sent\n")
	var out bytes.Buffer
	if err := Chat(ctx, rt, ChatOptions{Conversation: "c1", Stream: true, Window: 2}, "", in, &out); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !strings.Contains(out.String(), "Type 'exit' to quit.") {
		t.Errorf("missing banner in %q", out.String())
	}
	if n := strings.Count(out.String(), "Be honest."); n != 2 {
		t.Errorf("expected 2 replies, got %d", n)
	}

	h, err := rt.Store.Read(ctx, "c1", 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(h) != 4 {
		t.Errorf("expected 4 stored messages, got %d", len(h))
	}

	out.Reset()
	if err := Chat(ctx, rt, ChatOptions{Conversation: "c1", Window: -1}, "", strings.NewReader(""), &out); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !strings.Contains(out.String(), "Resuming conversation 'c1' (4 messages)") {
		t.Errorf("missing resume notice in %q", out.String())
	}
}

func TestReportPrintsJSON(t *testing.T) {
	s := testSettings(t)
	s.Tools.Enabled = false
	rt, _ := newTestRuntime(t, s)

	var out bytes.Buffer
	if err := Report(context.Background(), rt, ChatOptions{Conversation: "c1", Window: -1}, "we argue", &out); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["title"] != "Listen first" {
		t.Errorf("unexpected title %v", got["title"])
	}
	if !reflect.DeepEqual(got["suggestions"], []any{"ask", "wait"}) {
		t.Errorf("unexpected suggestions %v", got["suggestions"])
	}
}

func TestConversationsAndClear(t *testing.T) {
	rt, _ := newTestRuntime(t, testSettings(t))
	ctx := context.Background()

	var out bytes.Buffer
	if err := Conversations(ctx, rt, &out); err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	expectOutput(t, &out, "No stored conversations.\n")

	if err := rt.Store.Append(ctx, "c1", model.UserMessage("hi")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	out.Reset()
	if err := Conversations(ctx, rt, &out); err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	expectOutput(t, &out, "c1\n")

	out.Reset()
	if err := Clear(ctx, rt, "c1", &out); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	expectOutput(t, &out, "Cleared conversation 'c1'.\n")

	out.Reset()
	if err := History(ctx, rt, "c1", 0, &out); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	expectOutput(t, &out, "No messages in conversation 'c1'.\n")
}

func TestListToolsVerbose(t *testing.T) {
	rt, _ := newTestRuntime(t, testSettings(t))

	var out bytes.Buffer
	ListTools(rt, true, &out)
	if !strings.Contains(out.String(), "  date_diff\n") || !strings.Contains(out.String(), "      target_date*: string") {
		t.Errorf("verbose listing missing parameters:\n%s", out.String())
	}
}
