// Turn Orchestrator - one conversational turn from request to stored history.
//
// Assembles the request (history window, retrieved context), drives it
// through the advisor chain and commits the user and assistant messages
// together once the model has answered.
//
// Information Hiding:
// - Request assembly hidden
// - Failure-to-fallback policy hidden
// - Commit timing for streamed turns hidden

package orchestration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/counsel/advisor"
	"github.com/richinex/counsel/knowledge"
	"github.com/richinex/counsel/logging"
	"github.com/richinex/counsel/model"
	"github.com/richinex/counsel/storage"
	"github.com/richinex/counsel/stream"
)

// FallbackText is returned in place of an answer when the turn fails.
const FallbackText = "The assistant is temporarily offline, please try again."

// DefaultWindow is the number of prior messages injected per turn.
const DefaultWindow = 10

// Orchestrator runs conversational turns. Safe for concurrent use.
type Orchestrator struct {
	store        storage.ConversationStore
	chain        *advisor.Chain
	invoker      advisor.Invoker
	retriever    knowledge.Retriever
	systemPrompt string
	window       int
	logger       *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever attaches a context retriever.
func WithRetriever(r knowledge.Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithSystemPrompt sets the system text of every turn.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithRetrieveSize sets the default history window. 0 disables history.
func WithRetrieveSize(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.window = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator. A nil chain runs the invoker directly.
func New(store storage.ConversationStore, chain *advisor.Chain, invoker advisor.Invoker, opts ...Option) *Orchestrator {
	if chain == nil {
		chain = advisor.NewChain()
	}
	o := &Orchestrator{
		store:   store,
		chain:   chain,
		invoker: invoker,
		window:  DefaultWindow,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// TurnOption adjusts a single turn.
type TurnOption func(*turnConfig)

type turnConfig struct {
	window int
}

// WithWindow overrides the history window for one turn. 0 sends no history.
func WithWindow(n int) TurnOption {
	return func(c *turnConfig) {
		if n >= 0 {
			c.window = n
		}
	}
}

func (o *Orchestrator) config(opts []TurnOption) turnConfig {
	cfg := turnConfig{window: o.window}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Chat runs one synchronous turn and returns the assistant's text.
//
// Any failure in the chain yields FallbackText with a nil error and leaves
// the history untouched. A failed history write is logged; the answer is
// still returned. Only an unusable conversation id is reported as an error.
func (o *Orchestrator) Chat(ctx context.Context, id model.ConversationID, userText string, opts ...TurnOption) (string, error) {
	if id == "" {
		return "", storage.ErrInvalidID
	}
	start := time.Now()
	req := o.request(ctx, id, userText, o.config(opts))

	resp, err := o.chain.Call(ctx, req, o.invoker)
	if err != nil {
		o.logger.Warn("turn failed", zap.String("conversation", string(id)), logging.Elapsed(start), zap.Error(err))
		return FallbackText, nil
	}

	o.commit(ctx, id, userText, resp)
	o.logger.Info("turn completed",
		zap.String("conversation", string(id)),
		zap.Int("chars", len(resp.Text())),
		logging.Elapsed(start))
	return resp.Text(), nil
}

// ChatStream runs one streamed turn. Fragments reach the consumer as they
// arrive; the turn is stored once the stream finishes normally.
//
// A failure yields one fallback fragment and stores nothing. A consumer
// that stops early cancels the model call and stores nothing.
func (o *Orchestrator) ChatStream(ctx context.Context, id model.ConversationID, userText string, opts ...TurnOption) model.Stream {
	cfg := o.config(opts)
	return func(yield func(model.AdvisedResponse, error) bool) {
		if id == "" {
			yield(model.AdvisedResponse{}, storage.ErrInvalidID)
			return
		}
		start := time.Now()
		req := o.request(ctx, id, userText, cfg)

		completed := stream.Aggregate(o.chain.Stream(ctx, req, o.invoker), func(resp model.AdvisedResponse) {
			o.commit(ctx, id, userText, resp)
			o.logger.Info("streamed turn completed",
				zap.String("conversation", string(id)),
				zap.Int("chars", len(resp.Text())),
				logging.Elapsed(start))
		})
		for fragment, err := range completed {
			if err != nil {
				o.logger.Warn("streamed turn failed", zap.String("conversation", string(id)), logging.Elapsed(start), zap.Error(err))
				yield(model.NewResponse(FallbackText), nil)
				return
			}
			if !yield(fragment, nil) {
				o.logger.Debug("stream abandoned by consumer", zap.String("conversation", string(id)))
				return
			}
		}
	}
}

// request assembles the advised request for one turn.
func (o *Orchestrator) request(ctx context.Context, id model.ConversationID, userText string, cfg turnConfig) model.AdvisedRequest {
	req := model.AdvisedRequest{
		UserText:   userText,
		SystemText: o.systemPrompt,
	}.WithParam(model.ParamConversationID, id).WithParam(model.ParamRetrieveSize, cfg.window)

	if cfg.window > 0 {
		history, err := o.store.Read(ctx, id, cfg.window)
		if err != nil {
			o.logger.Warn("history unavailable", zap.String("conversation", string(id)), zap.Error(err))
		} else {
			req.History = history
		}
	}

	if o.retriever != nil {
		docs, err := o.retriever.Retrieve(ctx, userText)
		if err != nil {
			o.logger.Warn("retrieval failed", zap.String("conversation", string(id)), zap.Error(err))
		} else {
			req.Documents = docs
		}
	}
	return req
}

// commit stores the user message and the answer in one Append so no other
// write to id can land between them. The original user text is stored,
// not any rewrite an advisor sent downstream.
func (o *Orchestrator) commit(ctx context.Context, id model.ConversationID, userText string, resp model.AdvisedResponse) {
	err := o.store.Append(context.WithoutCancel(ctx), id,
		model.UserMessage(userText),
		model.AssistantMessage(resp.Text(), messageMetadata(resp.Metadata)),
	)
	if err != nil {
		o.logger.Error("turn not persisted", zap.String("conversation", string(id)), zap.Error(err))
	}
}

// messageMetadata keeps the scalar response metadata as strings.
func messageMetadata(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch v := v.(type) {
		case string:
			out[k] = v
		case int, int32, int64, uint32, uint64, float32, float64, bool:
			out[k] = fmt.Sprint(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
