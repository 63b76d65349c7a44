// Package advisor provides the ordered interceptor chain around a model call.
//
// Information Hiding:
// - Order sorting and continuation wiring hidden behind Chain
// - Sync and stream paths share the same onion nesting
// - Advisors only see the request, the response and "the rest of the chain"
package advisor

import (
	"cmp"
	"context"
	"slices"

	"github.com/richinex/counsel/model"
)

// Invoker is the terminal model call the chain wraps.
type Invoker interface {
	Call(ctx context.Context, req model.AdvisedRequest) (model.AdvisedResponse, error)
	Stream(ctx context.Context, req model.AdvisedRequest) model.Stream
}

// CallNext invokes the remainder of the chain on the synchronous path.
type CallNext func(ctx context.Context, req model.AdvisedRequest) (model.AdvisedResponse, error)

// StreamNext invokes the remainder of the chain on the streaming path.
type StreamNext func(ctx context.Context, req model.AdvisedRequest) model.Stream

// Advisor is a named, ordered interceptor. Lower Order runs first on the
// way in and last on the way out. An advisor takes part in a path only if
// it implements CallAdvisor and/or StreamAdvisor.
type Advisor interface {
	Name() string
	Order() int
}

// CallAdvisor wraps the synchronous path.
type CallAdvisor interface {
	Advisor
	AroundCall(ctx context.Context, req model.AdvisedRequest, next CallNext) (model.AdvisedResponse, error)
}

// StreamAdvisor wraps the streaming path.
type StreamAdvisor interface {
	Advisor
	AroundStream(ctx context.Context, req model.AdvisedRequest, next StreamNext) model.Stream
}

// Chain is an immutable, order-sorted list of advisors.
type Chain struct {
	advisors []Advisor
	call     []CallAdvisor
	stream   []StreamAdvisor
}

// NewChain sorts advisors by Order. Advisors with equal Order keep their
// argument order.
func NewChain(advisors ...Advisor) *Chain {
	sorted := slices.Clone(advisors)
	slices.SortStableFunc(sorted, func(a, b Advisor) int {
		return cmp.Compare(a.Order(), b.Order())
	})

	c := &Chain{advisors: sorted}
	for _, a := range sorted {
		if ca, ok := a.(CallAdvisor); ok {
			c.call = append(c.call, ca)
		}
		if sa, ok := a.(StreamAdvisor); ok {
			c.stream = append(c.stream, sa)
		}
	}
	return c
}

// Names returns advisor names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.advisors))
	for i, a := range c.advisors {
		names[i] = a.Name()
	}
	return names
}

// Call runs req through every CallAdvisor and then invoker.Call.
// An advisor error aborts the rest of the chain and is returned as is.
func (c *Chain) Call(ctx context.Context, req model.AdvisedRequest, invoker Invoker) (model.AdvisedResponse, error) {
	return c.callFrom(0, invoker)(ctx, req)
}

func (c *Chain) callFrom(i int, invoker Invoker) CallNext {
	if i == len(c.call) {
		return invoker.Call
	}
	a := c.call[i]
	return func(ctx context.Context, req model.AdvisedRequest) (model.AdvisedResponse, error) {
		return a.AroundCall(ctx, req, c.callFrom(i+1, invoker))
	}
}

// Stream runs req through every StreamAdvisor and then invoker.Stream.
func (c *Chain) Stream(ctx context.Context, req model.AdvisedRequest, invoker Invoker) model.Stream {
	return c.streamFrom(0, invoker)(ctx, req)
}

func (c *Chain) streamFrom(i int, invoker Invoker) StreamNext {
	if i == len(c.stream) {
		return invoker.Stream
	}
	a := c.stream[i]
	return func(ctx context.Context, req model.AdvisedRequest) model.Stream {
		return a.AroundStream(ctx, req, c.streamFrom(i+1, invoker))
	}
}
