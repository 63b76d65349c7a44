package advisor

import (
	"context"

	"github.com/richinex/counsel/model"
)

// ReReadingOrder places the re-reading rewrite ahead of the logger.
const ReReadingOrder = -100

// ReReading makes the model restate the question before answering by
// repeating the user text. The rewrite is plain concatenation.
type ReReading struct{}

// Name returns the advisor name.
func (ReReading) Name() string { return "ReReading" }

// Order returns ReReadingOrder.
func (ReReading) Order() int { return ReReadingOrder }

// AroundCall rewrites the request and delegates.
func (r ReReading) AroundCall(ctx context.Context, req model.AdvisedRequest, next CallNext) (model.AdvisedResponse, error) {
	return next(ctx, r.before(req))
}

// AroundStream rewrites the request and delegates.
func (r ReReading) AroundStream(ctx context.Context, req model.AdvisedRequest, next StreamNext) model.Stream {
	return next(ctx, r.before(req))
}

func (ReReading) before(req model.AdvisedRequest) model.AdvisedRequest {
	req.UserText = Reread(req.UserText)
	return req
}

// Reread returns text followed by an instruction to read it again.
func Reread(text string) string {
	return text + "\nRead the question again: " + text
}
