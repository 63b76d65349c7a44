package advisor

import (
	"context"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/richinex/counsel/model"
)

// TokenBudgetOrder runs the budget before any rewrite so trimming sees the
// history as loaded from the store.
const TokenBudgetOrder = -200

// perMessageOverhead approximates role and separator tokens per message.
const perMessageOverhead = 4

// Counter counts tokens in a piece of text.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

// Count calls f.
func (f CounterFunc) Count(text string) int { return f(text) }

// EstimateCounter approximates four bytes per token.
var EstimateCounter = CounterFunc(func(text string) int { return len(text) / 4 })

// NewTiktokenCounter loads the named BPE encoding (e.g. "cl100k_base").
// If the encoding cannot be loaded it falls back to EstimateCounter.
func NewTiktokenCounter(encoding string) Counter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return EstimateCounter
	}
	return CounterFunc(func(text string) int {
		return len(enc.Encode(text, nil, nil))
	})
}

// TokenBudget drops the oldest history messages until the prompt fits in
// the configured number of tokens. The system text, user text and retrieved
// documents are always kept; only history is trimmed, newest first kept.
type TokenBudget struct {
	budget  int
	counter Counter
	logger  *zap.Logger
}

// NewTokenBudget creates a budget advisor. A nil counter uses EstimateCounter.
func NewTokenBudget(budget int, counter Counter, logger *zap.Logger) *TokenBudget {
	if counter == nil {
		counter = EstimateCounter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenBudget{budget: budget, counter: counter, logger: logger.Named("advisor")}
}

// Name returns the advisor name.
func (b *TokenBudget) Name() string { return "TokenBudget" }

// Order returns TokenBudgetOrder.
func (b *TokenBudget) Order() int { return TokenBudgetOrder }

// AroundCall trims history and delegates.
func (b *TokenBudget) AroundCall(ctx context.Context, req model.AdvisedRequest, next CallNext) (model.AdvisedResponse, error) {
	return next(ctx, b.trim(req))
}

// AroundStream trims history and delegates.
func (b *TokenBudget) AroundStream(ctx context.Context, req model.AdvisedRequest, next StreamNext) model.Stream {
	return next(ctx, b.trim(req))
}

func (b *TokenBudget) trim(req model.AdvisedRequest) model.AdvisedRequest {
	if b.budget <= 0 || len(req.History) == 0 {
		return req
	}

	used := b.counter.Count(req.SystemText) + b.counter.Count(req.UserText) + 2*perMessageOverhead
	for _, doc := range req.Documents {
		used += b.counter.Count(doc)
	}

	keep := 0
	for i := len(req.History) - 1; i >= 0; i-- {
		cost := b.counter.Count(req.History[i].Text) + perMessageOverhead
		if used+cost > b.budget {
			break
		}
		used += cost
		keep++
	}

	if dropped := len(req.History) - keep; dropped > 0 {
		b.logger.Debug("history trimmed to token budget",
			conversationField(req),
			zap.Int("dropped", dropped),
			zap.Int("kept", keep),
			zap.Int("budget", b.budget),
		)
		if keep == 0 {
			req.History = model.History{}
		} else {
			req.History = req.History.Last(keep)
		}
	}
	return req
}
