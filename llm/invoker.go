// Invoker - the model call at the end of the advisor chain.
//
// Information Hiding:
// - Prompt assembly (system, history, user text with retrieved context)
// - Tool-calling loop bounded by a round limit
// - Channel-to-iterator bridging for streamed completions

package llm

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/richinex/counsel/model"
)

// ParamResponseFormat asks the invoker for a response format. The only
// recognised value is "json".
const ParamResponseFormat = "response_format"

// Response metadata keys.
const (
	MetaProvider         = "provider"
	MetaModel            = "model"
	MetaPromptTokens     = "prompt_tokens"
	MetaCompletionTokens = "completion_tokens"
	MetaToolsUsed        = "tools_used"
)

// DefaultMaxToolRounds bounds the tool loop when none is configured.
const DefaultMaxToolRounds = 5

// ToolRunner exposes tools to the model. Invoke never fails: errors are
// rendered into the returned text so the model can react to them.
type ToolRunner interface {
	Definitions() []ToolDefinition
	Invoke(ctx context.Context, name string, args json.RawMessage) string
}

// Invoker adapts a Provider to the advisor chain's terminal call.
type Invoker struct {
	provider  Provider
	tools     ToolRunner
	maxRounds int
	logger    *zap.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithTools enables tool calling on the synchronous path.
func WithTools(tools ToolRunner, maxRounds int) InvokerOption {
	return func(inv *Invoker) {
		inv.tools = tools
		if maxRounds > 0 {
			inv.maxRounds = maxRounds
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) InvokerOption {
	return func(inv *Invoker) {
		if logger != nil {
			inv.logger = logger
		}
	}
}

// NewInvoker creates an invoker for provider.
func NewInvoker(provider Provider, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		provider:  provider,
		maxRounds: DefaultMaxToolRounds,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.logger = inv.logger.Named("llm")
	return inv
}

// Provider returns the wrapped provider.
func (inv *Invoker) Provider() Provider {
	return inv.provider
}

// Messages assembles the provider prompt: system text, history, then the
// user text with any retrieved documents appended as a context block.
func (inv *Invoker) Messages(req model.AdvisedRequest) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(req.History)+2)
	if req.SystemText != "" {
		msgs = append(msgs, SystemMessage(req.SystemText))
	}
	msgs = append(msgs, FromHistory(req.History)...)
	return append(msgs, UserMessage(withContext(req.UserText, req.Documents)))
}

func withContext(userText string, documents []string) string {
	if len(documents) == 0 {
		return userText
	}
	var b strings.Builder
	b.WriteString(userText)
	b.WriteString("\n\nContext information is below.\n---------------------\n")
	b.WriteString(strings.Join(documents, "\n\n"))
	b.WriteString("\n---------------------\n")
	b.WriteString("Given the context information and no prior knowledge, answer the query.")
	return b.String()
}

func responseFormat(req model.AdvisedRequest) *ResponseFormat {
	if f, _ := req.Param(ParamResponseFormat).(string); f == "json" {
		return JSONFormat()
	}
	return nil
}

// Call performs a blocking completion. With tools attached, the model may
// request tool calls for up to maxRounds rounds; after that a final answer
// is requested without tools.
func (inv *Invoker) Call(ctx context.Context, req model.AdvisedRequest) (model.AdvisedResponse, error) {
	msgs := inv.Messages(req)
	format := responseFormat(req)

	var defs []ToolDefinition
	if inv.tools != nil {
		defs = inv.tools.Definitions()
	}
	if len(defs) == 0 {
		resp, err := inv.provider.ChatWithFormat(ctx, msgs, format)
		if err != nil {
			return model.AdvisedResponse{}, err
		}
		return inv.response(resp, nil), nil
	}

	var used []string
	for round := 0; round < inv.maxRounds; round++ {
		resp, err := inv.provider.ChatWithTools(ctx, msgs, defs)
		if err != nil {
			return model.AdvisedResponse{}, err
		}
		if len(resp.ToolCalls) == 0 {
			return inv.response(resp, used), nil
		}

		msgs = append(msgs, ChatMessage{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			inv.logger.Debug("tool call",
				zap.Int("round", round),
				zap.String("tool", call.Name),
				zap.ByteString("args", call.Arguments),
			)
			result := inv.tools.Invoke(ctx, call.Name, call.Arguments)
			msgs = append(msgs, ToolResultMessage(call, result))
			used = append(used, call.Name)
		}
	}

	inv.logger.Warn("tool round limit reached", zap.Int("rounds", inv.maxRounds))
	resp, err := inv.provider.ChatWithFormat(ctx, msgs, format)
	if err != nil {
		return model.AdvisedResponse{}, err
	}
	return inv.response(resp, used), nil
}

func (inv *Invoker) response(resp LLMResponse, toolsUsed []string) model.AdvisedResponse {
	meta := map[string]any{
		MetaProvider: inv.provider.Name(),
		MetaModel:    inv.provider.Model(),
	}
	addUsage(meta, resp.Usage)
	if len(toolsUsed) > 0 {
		meta[MetaToolsUsed] = toolsUsed
	}
	return model.AdvisedResponse{
		Message:  model.AssistantMessage(resp.Content, nil),
		Metadata: meta,
	}
}

func addUsage(meta map[string]any, usage *TokenUsage) {
	if usage == nil {
		return
	}
	meta[MetaPromptTokens] = usage.PromptTokens
	meta[MetaCompletionTokens] = usage.CompletionTokens
}

type streamResult struct {
	usage *TokenUsage
	err   error
}

// Stream starts a streamed completion when the returned sequence is first
// ranged over. Each chunk becomes one fragment. When the consumer stops
// early the provider call is cancelled and its goroutine is awaited.
// Provider and usage metadata arrive on a final fragment with empty text.
func (inv *Invoker) Stream(ctx context.Context, req model.AdvisedRequest) model.Stream {
	msgs := inv.Messages(req)
	return func(yield func(model.AdvisedResponse, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		chunks := make(chan string)
		done := make(chan streamResult, 1)

		go func() {
			defer close(chunks)
			usage, err := inv.provider.StreamChat(ctx, msgs, chunks)
			done <- streamResult{usage: usage, err: err}
		}()
		defer func() {
			cancel()
			for range chunks {
			}
		}()

		for chunk := range chunks {
			if !yield(model.NewResponse(chunk), nil) {
				return
			}
		}

		res := <-done
		if res.err != nil {
			yield(model.AdvisedResponse{}, res.err)
			return
		}
		meta := map[string]any{
			MetaProvider: inv.provider.Name(),
			MetaModel:    inv.provider.Model(),
		}
		addUsage(meta, res.usage)
		yield(model.AdvisedResponse{Message: model.AssistantMessage("", nil), Metadata: meta}, nil)
	}
}
